package model

// Mode is the request-scoped capability level for a chat turn.
type Mode string

const (
	// ModeChat is read-only: the model may answer and inspect artifacts but
	// cannot mutate anything.
	ModeChat Mode = "chat"
	// ModeAgent grants the full registered tool set.
	ModeAgent Mode = "agent"
)

// ParseMode maps a client-supplied mode string onto the closed enumeration.
// Unknown or empty values fall back to the more restrictive chat mode.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAgent:
		return ModeAgent
	default:
		return ModeChat
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeChat || m == ModeAgent
}
