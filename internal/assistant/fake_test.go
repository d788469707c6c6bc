package assistant

import (
	"context"
	"sync"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/action"
	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/dispatcher"
	"github.com/megasecretaria/megasecretaria/internal/history"
)

type fakeHistory struct {
	mu        sync.Mutex
	entries   map[string][]history.Entry
	appendErr error
	readErr   error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: make(map[string][]history.Entry)}
}

func (h *fakeHistory) Append(_ context.Context, sender, text string, dir history.Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.entries[sender] = append(h.entries[sender], history.Entry{
		Sender:    sender,
		Text:      text,
		Direction: dir,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *fakeHistory) Read(_ context.Context, sender string, limit int) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, h.readErr
	}
	all := h.entries[sender]
	out := make([]history.Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (h *fakeHistory) texts(sender string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.entries[sender] {
		out = append(out, string(e.Direction)+":"+e.Text)
	}
	return out
}

type fakeDispatcher struct {
	pending    map[string]bool
	pendingRep dispatcher.Reply
	reply      dispatcher.Reply
	dispatched []action.Request
	rejected   []*action.ParamError
	rejectRep  dispatcher.Reply
}

func (d *fakeDispatcher) HandlePending(_ context.Context, sender, _ string) (dispatcher.Reply, bool) {
	if d.pending[sender] {
		return d.pendingRep, true
	}
	return dispatcher.Reply{}, false
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ string, req action.Request) dispatcher.Reply {
	d.dispatched = append(d.dispatched, req)
	return d.reply
}

func (d *fakeDispatcher) Reject(_ context.Context, _ string, invalid *action.ParamError) dispatcher.Reply {
	d.rejected = append(d.rejected, invalid)
	return d.rejectRep
}

type fakeModel struct {
	reply   string
	err     error
	calls   int
	system  string
	user    string
	history []contextwindow.Turn
}

func (m *fakeModel) Complete(_ context.Context, system string, turns []contextwindow.Turn, user string) (string, error) {
	m.calls++
	m.system = system
	m.user = user
	m.history = turns
	return m.reply, m.err
}

type sent struct {
	number string
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *fakeSender) Send(_ context.Context, number, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{number: number, text: text})
	return nil
}
