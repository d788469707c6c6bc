package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megasecretaria/megasecretaria/internal/action"
	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/dispatcher"
	"github.com/megasecretaria/megasecretaria/internal/history"
	"github.com/megasecretaria/megasecretaria/internal/llm"
)

const sender = "5511999990000"

type pipelineFixture struct {
	history    *fakeHistory
	dispatcher *fakeDispatcher
	model      *fakeModel
	sender     *fakeSender
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		history:    newFakeHistory(),
		dispatcher: &fakeDispatcher{pending: map[string]bool{}},
		model:      &fakeModel{},
		sender:     &fakeSender{},
	}
	loc := time.UTC
	p, err := NewPipeline(Config{
		History:    f.history,
		Dispatcher: f.dispatcher,
		Model:      f.model,
		Sender:     f.sender,
		Prompt:     llm.NewPromptBuilder("", "", loc),
		Parser:     action.NewParser(loc),
		Counter:    contextwindow.CounterFunc(func(string) int { return 1 }),
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(Config{})
	assert.Error(t, err)
}

func TestPipeline_PlainTextReply(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.reply = "Olá! Como posso ajudar?"

	require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "oi"}))

	assert.Equal(t, []sent{{number: sender, text: "Olá! Como posso ajudar?"}}, f.sender.sent)
	assert.Equal(t, []string{"incoming:oi", "outgoing:Olá! Como posso ajudar?"}, f.history.texts(sender))
	assert.Equal(t, "Meu Mestre disse: oi", f.model.user)
	assert.Empty(t, f.model.history, "current message must not be repeated in the history")
	assert.Empty(t, f.dispatcher.dispatched)
}

func TestPipeline_ActionReplyIsDispatched(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.reply = `{"action":"list_events","parameters":{}}`
	f.dispatcher.reply = dispatcher.Reply{Text: dispatcher.MsgNoEvents}

	require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "o que tenho hoje?"}))

	require.Len(t, f.dispatcher.dispatched, 1)
	assert.Equal(t, action.NameListEvents, f.dispatcher.dispatched[0].Action())
	assert.Equal(t, dispatcher.MsgNoEvents, f.sender.sent[0].text)
}

func TestPipeline_MalformedParametersAskForClarification(t *testing.T) {
	const clarification = "Não consegui entender a data e o horário de início. Pode informar novamente?"

	tests := []struct {
		name      string
		reply     string
		wantField string
		rejectRep dispatcher.Reply
		wantText  string
	}{
		{
			name:      "unparseable start",
			reply:     `{"action":"create_event","parameters":{"summary":"Reunião","start_datetime":"amanhã às 15h"}}`,
			wantField: "start_datetime",
			rejectRep: dispatcher.Reply{Text: clarification},
			wantText:  clarification,
		},
		{
			name:      "wrong type",
			reply:     `{"action":"list_events","parameters":{"query":42}}`,
			wantField: "query",
			rejectRep: dispatcher.Reply{Text: "Não consegui entender o texto da busca. Pode informar novamente?"},
			wantText:  "Não consegui entender o texto da busca. Pode informar novamente?",
		},
		{
			name:      "empty rejection text",
			reply:     `{"action":"delete_event","parameters":{"start_datetime":"ontem"}}`,
			wantField: "start_datetime",
			wantText:  dispatcher.MsgGenericFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			f.model.reply = tt.reply
			f.dispatcher.rejectRep = tt.rejectRep

			require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "marca uma reunião"}))

			assert.Empty(t, f.dispatcher.dispatched)
			require.Len(t, f.dispatcher.rejected, 1)
			assert.Equal(t, tt.wantField, f.dispatcher.rejected[0].Field)
			require.Len(t, f.sender.sent, 1)
			assert.Equal(t, tt.wantText, f.sender.sent[0].text)
			assert.NotContains(t, f.sender.sent[0].text, `"action"`)
			assert.Equal(t, []string{"incoming:marca uma reunião", "outgoing:" + tt.wantText}, f.history.texts(sender))
		})
	}
}

func TestPipeline_PendingConfirmationSkipsModel(t *testing.T) {
	f := newPipelineFixture(t)
	f.dispatcher.pending[sender] = true
	f.dispatcher.pendingRep = dispatcher.Reply{Text: dispatcher.MsgDeclined}

	require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "não"}))

	assert.Zero(t, f.model.calls)
	assert.Equal(t, dispatcher.MsgDeclined, f.sender.sent[0].text)
}

func TestPipeline_ModelFailureApologizes(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.err = errors.New("upstream timeout")

	require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "oi"}))

	assert.Equal(t, dispatcher.MsgGenericFailure, f.sender.sent[0].text)
	assert.Equal(t, []string{"incoming:oi", "outgoing:" + dispatcher.MsgGenericFailure}, f.history.texts(sender))
}

func TestPipeline_HistoryFeedsContext(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.history.Append(ctx, sender, "primeira", history.Incoming))
	require.NoError(t, f.history.Append(ctx, sender, "resposta", history.Outgoing))
	f.model.reply = "ok"

	require.NoError(t, f.pipeline.Handle(ctx, Message{Sender: sender, Text: "segunda"}))

	require.Len(t, f.model.history, 2)
	assert.Equal(t, contextwindow.RoleUser, f.model.history[0].Role)
	assert.Equal(t, "primeira", f.model.history[0].Text)
	assert.Equal(t, contextwindow.RoleAssistant, f.model.history[1].Role)
}

func TestPipeline_HistoryFailuresDoNotBlockReply(t *testing.T) {
	f := newPipelineFixture(t)
	f.history.appendErr = errors.New("disk full")
	f.history.readErr = errors.New("disk full")
	f.model.reply = "ok"

	require.NoError(t, f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "oi"}))
	assert.Equal(t, "ok", f.sender.sent[0].text)
}

func TestPipeline_DeliveryFailureIsReturned(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.reply = "ok"
	f.sender.err = errors.New("gateway down")

	err := f.pipeline.Handle(context.Background(), Message{Sender: sender, Text: "oi"})
	assert.ErrorIs(t, err, f.sender.err)
}

func TestWithoutCurrent(t *testing.T) {
	entries := []history.Entry{
		{Text: "oi", Direction: history.Incoming},
		{Text: "olá", Direction: history.Outgoing},
	}

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "drops matching newest incoming", text: "oi", want: 1},
		{name: "keeps unrelated history", text: "tchau", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, withoutCurrent(entries, tt.text), tt.want)
		})
	}
	assert.Empty(t, withoutCurrent(nil, "oi"))
}
