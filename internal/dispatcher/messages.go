package dispatcher

import (
	"fmt"
	"strings"

	"github.com/megasecretaria/megasecretaria/internal/calendar"
	"github.com/megasecretaria/megasecretaria/internal/resolver"
)

// Fixed replies sent to the sender.
const (
	MsgConfirmPrompt   = "Por favor, responda com 'sim' para confirmar ou 'não' para escolher outro horário."
	MsgDeclined        = "Ok, então escolha outro horário para o evento."
	MsgDuplicate       = "Este evento já foi criado recentemente."
	MsgNoEvents        = "Nenhum evento encontrado no período solicitado."
	MsgAvailable       = "O horário está disponível."
	MsgBusy            = "O horário está ocupado por outro evento."
	MsgCalendarAuth    = "Desculpe, não consegui conectar ao Google Calendar no momento."
	MsgGenericFailure  = "Desculpe, não consegui processar sua solicitação no momento. Pode tentar reformular?"
	MsgNothingToUpdate = "Informe o que deve ser alterado no evento."
)

const (
	dateLayout     = "02/01/2006"
	clockLayout    = "15:04"
	dateTimeLayout = resolver.DisplayLayout
)

var fieldNames = map[string]string{
	"summary":        "o título do evento",
	"description":    "a descrição do evento",
	"event_id":       "o ID do evento",
	"query":          "o texto da busca",
	"timezone":       "o fuso horário",
	"start_datetime": "a data e o horário de início",
	"end_datetime":   "a data e o horário de término",
	"start_date":     "a data inicial",
	"end_date":       "a data final",
	"parameters":     "os detalhes do pedido",
}

func validationMessage(err *ValidationError) string {
	switch {
	case err.Reason == reasonEndBeforeStart:
		return "O horário de término precisa ser depois do início."
	case err.Field == "updates":
		return MsgNothingToUpdate
	}
	name, ok := fieldNames[err.Field]
	if !ok {
		name = err.Field
	}
	if err.Reason != "" {
		return fmt.Sprintf("Não consegui entender %s. Pode informar novamente?", name)
	}
	return fmt.Sprintf("Para continuar, preciso de %s.", name)
}

func conflictMessage(conflicts []calendar.Event) string {
	var b strings.Builder
	b.WriteString("⚠️ Já existe evento(s) neste horário:\n\n")
	for _, e := range conflicts {
		fmt.Fprintf(&b, "- %s das %s até %s\n", displaySummary(e.Summary),
			e.Start.Format(dateTimeLayout), e.End.Format(dateTimeLayout))
	}
	b.WriteString("\nDeseja marcar este novo evento mesmo assim? (Responda com 'sim' para confirmar ou 'não' para escolher outro horário).")
	return b.String()
}

func createdMessage(e calendar.Event) string {
	return fmt.Sprintf("✅ Evento Criado com Sucesso!\n\n*Nome:* %s\n*Data:* %s\n*Início:* %s\n*Término:* %s\n*ID:* %s",
		e.Summary, e.Start.Format(dateLayout), e.Start.Format(clockLayout), e.End.Format(clockLayout), e.ID)
}

func listMessage(events []calendar.Event) string {
	var b strings.Builder
	b.WriteString("✅ Aqui estão seus eventos:")
	for i, e := range events {
		fmt.Fprintf(&b, "\n\n%d. *Título:* %s\n    - *Data:* %s\n    - *Início:* %s\n    - *ID:* %s",
			i+1, displaySummary(e.Summary), e.Start.Format(dateLayout), e.Start.Format(clockLayout), e.ID)
	}
	return b.String()
}

func updatedMessage(e calendar.Event) string {
	return fmt.Sprintf("✅ Evento atualizado com sucesso!\n\n*Nome:* %s\n*Data:* %s\n*Início:* %s\n*Término:* %s\n*ID:* %s",
		e.Summary, e.Start.Format(dateLayout), e.Start.Format(clockLayout), e.End.Format(clockLayout), e.ID)
}

func deletedMessage(id, summary string) string {
	if summary != "" {
		return fmt.Sprintf("✅ Evento '%s' (ID '%s') deletado com sucesso.", summary, id)
	}
	return fmt.Sprintf("✅ Evento com ID '%s' deletado com sucesso.", id)
}

func busyMessage(conflicts []calendar.Event) string {
	var b strings.Builder
	b.WriteString(MsgBusy)
	if len(conflicts) > 0 {
		b.WriteString("\n")
	}
	for _, e := range conflicts {
		fmt.Fprintf(&b, "\n- %s das %s até %s", displaySummary(e.Summary),
			e.Start.Format(dateTimeLayout), e.End.Format(dateTimeLayout))
	}
	return b.String()
}

func notFoundMessage(err *NotFoundError) string {
	if err.EventID != "" {
		return fmt.Sprintf("Erro: Evento com ID '%s' não encontrado.", err.EventID)
	}
	return fmt.Sprintf("Não encontrei nenhum evento chamado '%s' no período informado.", err.Summary)
}

func ambiguousMessage(err *AmbiguousMatchError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontrei mais de um evento chamado '%s':\n", err.Summary)
	for i, c := range err.Candidates {
		fmt.Fprintf(&b, "\n%d. %s em %s (ID: %s)", i+1, displaySummary(c.Summary), c.FormattedStart(), c.ID)
	}
	b.WriteString("\n\nQual deles você quer? Responda com o ID do evento.")
	return b.String()
}

func displaySummary(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(sem título)"
	}
	return s
}
