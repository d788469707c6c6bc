package webhook

import "strings"

// EventMessagesUpsert is the Evolution event emitted for new messages.
const EventMessagesUpsert = "messages.upsert"

type payload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     *struct {
		Key struct {
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName string   `json:"pushName"`
		Message  *message `json:"message"`
	} `json:"data"`
}

type message struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
}

func (m *message) text() string {
	if m == nil {
		return ""
	}
	if m.Conversation != "" {
		return m.Conversation
	}
	if m.ExtendedTextMessage != nil {
		return m.ExtendedTextMessage.Text
	}
	return ""
}

// NormalizeNumber strips the JID suffix and a leading plus sign.
func NormalizeNumber(jid string) string {
	number, _, _ := strings.Cut(strings.TrimSpace(jid), "@")
	return strings.TrimPrefix(number, "+")
}

// AllowList is the set of phone numbers allowed to talk to the assistant.
// An empty list allows nobody.
type AllowList map[string]struct{}

// NewAllowList normalizes numbers into an AllowList.
func NewAllowList(numbers []string) AllowList {
	a := make(AllowList, len(numbers))
	for _, n := range numbers {
		if n = NormalizeNumber(n); n != "" {
			a[n] = struct{}{}
		}
	}
	return a
}

// Allowed reports whether number may use the assistant.
func (a AllowList) Allowed(number string) bool {
	_, ok := a[NormalizeNumber(number)]
	return ok
}
