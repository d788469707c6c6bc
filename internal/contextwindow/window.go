package contextwindow

import (
	"time"

	"github.com/megasecretaria/megasecretaria/internal/history"
)

// DefaultBudget is the token budget used when none is configured.
const DefaultBudget = 1000

// Role is the chat role a turn is presented to the model with.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the assembled window.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
	Tokens    int
}

// RoleFor maps a history direction to the model role.
func RoleFor(d history.Direction) Role {
	if d == history.Outgoing {
		return RoleAssistant
	}
	return RoleUser
}

// Build returns the newest turns of entries (ordered most recent first) whose
// combined token count fits in budget, ordered oldest first.
func Build(entries []history.Entry, budget int, counter Counter) []Turn {
	if len(entries) == 0 || budget <= 0 {
		return nil
	}
	if counter == nil {
		counter = Estimator{}
	}

	var (
		picked []Turn
		used   int
	)
	for _, e := range entries {
		n := counter.Count(e.Text)
		if used+n > budget {
			break
		}
		used += n
		picked = append(picked, Turn{
			Role:      RoleFor(e.Direction),
			Text:      e.Text,
			Timestamp: e.Timestamp,
			Tokens:    n,
		})
	}

	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// TotalTokens sums the token counts of turns.
func TotalTokens(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += t.Tokens
	}
	return total
}
