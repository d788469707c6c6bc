package instrumentation

// Calendar operation label values. They mirror the collaborator methods.
const (
	OperationList     = "list"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationFreeBusy = "freebusy"
	OperationComplete = "complete"
	OperationSend     = "send"
)

// Outcome label values for dispatched assistant actions. The set is closed so
// that assistant_actions_total keeps a bounded number of series.
const (
	OutcomeDone          = "done"
	OutcomeConflict      = "conflict"
	OutcomeDuplicate     = "duplicate"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeAmbiguous     = "ambiguous"
	OutcomeFailed        = "failed"
	OutcomeConfirmed     = "confirmed"
	OutcomeDeclined      = "declined"
	OutcomeReprompted    = "reprompted"
	OutcomeConversation  = "conversation"
	OutcomeUnknownLabel  = "unknown"
	WebhookResultQueued  = "queued"
	WebhookResultIgnored = "ignored"
	WebhookResultInvalid = "invalid"
)

var knownOutcomes = map[string]bool{
	OutcomeDone:         true,
	OutcomeConflict:     true,
	OutcomeDuplicate:    true,
	OutcomeInvalid:      true,
	OutcomeNotFound:     true,
	OutcomeAmbiguous:    true,
	OutcomeFailed:       true,
	OutcomeConfirmed:    true,
	OutcomeDeclined:     true,
	OutcomeReprompted:   true,
	OutcomeConversation: true,
}

// NormalizeOutcome maps anything outside the closed outcome set to "unknown".
//
// Example:
//
//	NormalizeOutcome("conflict")  // "conflict"
//	NormalizeOutcome("whatever")  // "unknown"
func NormalizeOutcome(outcome string) string {
	if knownOutcomes[outcome] {
		return outcome
	}
	return OutcomeUnknownLabel
}
