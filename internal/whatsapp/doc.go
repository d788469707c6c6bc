// Package whatsapp provides a client for sending WhatsApp messages through an
// Evolution API instance.
//
// The Evolution API is a self-hosted gateway that exposes a WhatsApp session
// over HTTP. Messages are sent with POST /message/sendText/{instance},
// authenticated by the instance API key.
//
// Example usage:
//
//	client, err := whatsapp.NewClient(whatsapp.Config{
//	    BaseURL:  "http://evolution:8080",
//	    APIKey:   os.Getenv("EVOLUTION_API_KEY"),
//	    Instance: "megasecretaria",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Send(ctx, "5511999990000", "Olá!")
package whatsapp
