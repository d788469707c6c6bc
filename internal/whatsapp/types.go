package whatsapp

import "fmt"

// SendError represents an error that occurred while sending a message.
type SendError struct {
	// Op is the operation that failed (e.g., "send", "validate")
	Op string

	// Number is the recipient phone number
	Number string

	// StatusCode is the HTTP status returned by the gateway, if any
	StatusCode int

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *SendError) Error() string {
	if e.Number != "" {
		return fmt.Sprintf("whatsapp %s (number: %s): %v", e.Op, e.Number, e.Err)
	}
	return fmt.Sprintf("whatsapp %s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *SendError) Unwrap() error {
	return e.Err
}

// sendTextRequest is the Evolution API sendText body.
type sendTextRequest struct {
	Number      string      `json:"number"`
	Options     sendOptions `json:"options"`
	TextMessage textMessage `json:"textMessage"`
}

type sendOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

type textMessage struct {
	Text string `json:"text"`
}
