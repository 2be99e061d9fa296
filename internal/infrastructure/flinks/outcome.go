package flinks

// AuthOutcome is the result of any /Authorize call: either a *Session or a
// *Challenge. Callers switch on the concrete type.
type AuthOutcome interface {
	authOutcome()
}

// Session is an authorized provider session.
type Session struct {
	RequestID   string
	LoginID     string
	Institution string
}

// Challenge means the institution wants interactive answers before a
// session is granted. RequestID correlates the answers.
type Challenge struct {
	RequestID  string
	Challenges []SecurityChallenge
}

type SecurityChallenge struct {
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

func (*Session) authOutcome()   {}
func (*Challenge) authOutcome() {}

var (
	_ AuthOutcome = (*Session)(nil)
	_ AuthOutcome = (*Challenge)(nil)
)
