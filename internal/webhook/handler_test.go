package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megasecretaria/megasecretaria/internal/assistant"
	"github.com/megasecretaria/megasecretaria/internal/server"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []assistant.Message
	err  error
}

func (q *fakeQueue) Enqueue(msg assistant.Message) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.msgs = append(q.msgs, msg)
	return "job-1", nil
}

func newTestRouter(q *fakeQueue) http.Handler {
	return NewRouter(Config{
		AllowList: NewAllowList([]string{"+5511999990000"}),
		Queue:     q,
		Health:    server.NewHealthChecker(nil),
	})
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestWebhook_Receive(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantStatus string
		wantText   string
	}{
		{
			name:       "conversation text is queued",
			body:       `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","fromMe":false},"message":{"conversation":"oi"}}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusQueued,
			wantText:   "oi",
		},
		{
			name:       "extended text is queued",
			body:       `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net"},"message":{"extendedTextMessage":{"text":"reunião amanhã"}}}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusQueued,
			wantText:   "reunião amanhã",
		},
		{
			name:       "own message is ignored",
			body:       `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net","fromMe":true},"message":{"conversation":"oi"}}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusIgnored,
		},
		{
			name:       "unknown sender is ignored",
			body:       `{"event":"messages.upsert","data":{"key":{"remoteJid":"5521888880000@s.whatsapp.net"},"message":{"conversation":"oi"}}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusIgnored,
		},
		{
			name:       "other events are ignored",
			body:       `{"event":"connection.update","data":{"state":"open"}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusIgnored,
		},
		{
			name:       "media without text is ignored",
			body:       `{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net"},"message":{"imageMessage":{}}}}`,
			wantCode:   http.StatusOK,
			wantStatus: StatusIgnored,
		},
		{
			name:       "malformed JSON",
			body:       `{"event":`,
			wantCode:   http.StatusBadRequest,
			wantStatus: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			rec, resp := post(t, newTestRouter(q), tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantText == "" {
				assert.Empty(t, q.msgs)
				return
			}
			require.Len(t, q.msgs, 1)
			assert.Equal(t, "5511999990000", q.msgs[0].Sender)
			assert.Equal(t, tt.wantText, q.msgs[0].Text)
			assert.Equal(t, "job-1", resp.ID)
		})
	}
}

func TestWebhook_QueueFull(t *testing.T) {
	q := &fakeQueue{err: assistant.ErrQueueFull}
	rec, resp := post(t, newTestRouter(q),
		`{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net"},"message":{"conversation":"oi"}}}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusError, resp.Status)
}

func TestWebhook_QueueFailure(t *testing.T) {
	q := &fakeQueue{err: errors.New("boom")}
	rec, _ := post(t, newTestRouter(q),
		`{"event":"messages.upsert","data":{"key":{"remoteJid":"5511999990000@s.whatsapp.net"},"message":{"conversation":"oi"}}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_HealthEndpoints(t *testing.T) {
	h := newTestRouter(&fakeQueue{})

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeQueue{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAllowList(t *testing.T) {
	a := NewAllowList([]string{"+5511999990000", " ", "5521888880000@s.whatsapp.net"})

	assert.True(t, a.Allowed("5511999990000"))
	assert.True(t, a.Allowed("+5511999990000"))
	assert.True(t, a.Allowed("5521888880000"))
	assert.False(t, a.Allowed("5531777770000"))
	assert.False(t, NewAllowList(nil).Allowed("5511999990000"))
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, "5511999990000", NormalizeNumber("5511999990000@s.whatsapp.net"))
	assert.Equal(t, "5511999990000", NormalizeNumber("+5511999990000"))
	assert.Equal(t, "", NormalizeNumber(""))
}
