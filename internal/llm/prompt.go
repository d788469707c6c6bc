package llm

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDesignation is how the authorized user is referred to.
const DefaultDesignation = "Meu Mestre"

// DefaultPersona is the assistant persona used when none is configured.
const DefaultPersona = `Você é uma secretária virtual prestativa, eficiente e profissional. Seu objetivo principal é auxiliar o usuário em suas tarefas e responder às suas perguntas de forma clara e concisa. Você deve ser educada e sempre manter um tom de voz adequado.`

// PromptBuilder renders the system prompt and the user turn.
type PromptBuilder struct {
	Persona     string
	Designation string
	Location    *time.Location
}

// NewPromptBuilder fills empty fields with the defaults.
func NewPromptBuilder(persona, designation string, loc *time.Location) *PromptBuilder {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	if strings.TrimSpace(designation) == "" {
		designation = DefaultDesignation
	}
	if loc == nil {
		loc = time.Local
	}
	return &PromptBuilder{Persona: persona, Designation: designation, Location: loc}
}

// UserTurn prefixes the sender's text with the designation.
func (p *PromptBuilder) UserTurn(text string) string {
	return fmt.Sprintf("%s disse: %s", p.Designation, text)
}

// System renders the system prompt for the moment now.
func (p *PromptBuilder) System(now time.Time) string {
	now = now.In(p.Location)
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	offset := now.Format("-07:00")

	var b strings.Builder
	b.WriteString("<objetivo>\nAtender às solicitações do usuário de forma prestativa, eficiente e natural, mantendo o contexto da conversa. Você também é capaz de interagir com o Google Calendar para gerenciar eventos.\n</objetivo>\n\n")
	fmt.Fprintf(&b, "<persona>\n%s\n</persona>\n\n", p.Persona)

	b.WriteString("<regras_de_interacao>\n")
	fmt.Fprintf(&b, "1. Sempre se refira ao usuário autorizado como \"%s\" em suas respostas.\n", p.Designation)
	b.WriteString("2. Utilize o histórico de conversas fornecido para manter o contexto.\n")
	b.WriteString("3. Forneça informações diretas e evite divagações.\n")
	b.WriteString("4. Se a solicitação for sobre eventos do Google Calendar (criar, listar, atualizar, excluir, verificar disponibilidade), responda SOMENTE com um objeto JSON no formato {\"action\": \"<nome_da_acao>\", \"parameters\": {<parametros>}}. Se não for uma ação de calendário, responda em texto natural.\n")
	b.WriteString("5. Ações e parâmetros:\n")
	b.WriteString("   - create_event: summary (obrigatório), start_datetime (obrigatório), end_datetime, description\n")
	b.WriteString("   - list_events: start_date, end_date (YYYY-MM-DD), query\n")
	b.WriteString("   - update_event: event_id ou summary e start_datetime do evento atual; updates com summary, start_datetime, end_datetime, description\n")
	b.WriteString("   - delete_event: event_id ou summary e start_datetime do evento\n")
	b.WriteString("   - check_availability: start_datetime, end_datetime (obrigatórios)\n")
	fmt.Fprintf(&b, "6. Datas e horários no formato YYYY-MM-DDTHH:MM:SS%s (horário de %s). Se o usuário disser \"hoje\", use %s; \"amanhã\", use %s; para dias da semana, calcule a data a partir de %s.\n",
		offset, p.Location.String(), today, tomorrow, today)
	b.WriteString("7. Se não souber responder, informe educadamente e sugira reformular a pergunta.\n")
	b.WriteString("</regras_de_interacao>\n\n")

	b.WriteString("<informacoes_de_contexto>\n")
	fmt.Fprintf(&b, "Data atual: %s\nData de amanhã: %s\nHora atual: %s\n", today, tomorrow, now.Format("15:04"))
	b.WriteString("</informacoes_de_contexto>")
	return b.String()
}
