package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/megasecretaria/megasecretaria/internal/config"
	"github.com/megasecretaria/megasecretaria/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		credentialsFile string
		tokenFile       string
		redirectURL     string
		code            string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar access",
		Long: `Run the one-time OAuth consent flow for the calendar account.

The command prints a consent URL. Open it, approve access, and paste the
authorization code shown by Google (or the "code" parameter of the redirect
URL). The token, including its refresh token, is written to --token-file.

The OAuth client comes from --credentials-file, or from GOOGLE_CLIENT_ID and
GOOGLE_CLIENT_SECRET when both are set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g := config.GoogleConfig{
				CredentialsFile: credentialsFile,
				TokenFile:       tokenFile,
				ClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
				ClientSecret:    os.Getenv("GOOGLE_CLIENT_SECRET"),
			}
			if !cmd.Flags().Changed("credentials-file") {
				if v := os.Getenv("GOOGLE_CREDENTIALS_FILE"); v != "" {
					g.CredentialsFile = v
				}
			}
			if !cmd.Flags().Changed("token-file") {
				if v := os.Getenv("GOOGLE_TOKEN_FILE"); v != "" {
					g.TokenFile = v
				}
			}

			creds := googleCredentials(g)
			creds.RedirectURL = redirectURL
			conf, err := google.OAuthConfig(creds)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if code == "" {
				fmt.Fprintf(out, "Open this URL in your browser and authorize access:\n\n%s\n\n", google.AuthURL(conf))
				fmt.Fprint(out, "Authorization code: ")

				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read authorization code: %w", err)
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return fmt.Errorf("authorization code is required")
			}

			if err := google.ExchangeAndSave(cmd.Context(), conf, code, g.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", g.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&credentialsFile, "credentials-file", config.DefaultCredentialsFile, "Google OAuth client secrets JSON. Can also use GOOGLE_CREDENTIALS_FILE env var.")
	cmd.Flags().StringVar(&tokenFile, "token-file", config.DefaultTokenFile, "Where to store the OAuth token. Can also use GOOGLE_TOKEN_FILE env var.")
	cmd.Flags().StringVar(&redirectURL, "redirect-url", "", "OAuth redirect URL registered for the client (defaults to the one in the credentials file)")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code, skips the interactive prompt")

	return cmd
}
