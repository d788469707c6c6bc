// Package google loads the OAuth2 client configuration and the stored user
// token that authorize Google Calendar access.
//
// The token is produced once by the "auth" command and refreshed in place
// afterwards; the serving process never prompts.
package google
