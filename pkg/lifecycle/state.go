// Package lifecycle models the life of one relayed message: created, stored,
// fetched, read-and-deleted or expired. It enforces time-to-live and
// at-most-once delivery against an injectable envelope store.
//
// The state machine:
//
//	               ┌────────────────┐ approve  ┌────────┐
//	send ───────── │ PendingApproval│ ───────► │        │
//	  │            └────────────────┘          │        │
//	  │            ┌────────────────┐ reauth   │ Stored │ ──read──► Deleted
//	  ├─────────── │ RequireReauth  │ ───────► │        │
//	  │            └────────────────┘          │        │ ──ttl───► Expired
//	  └──────────────────────────────────────► └────────┘
//
// Deleted, Expired and Blocked are terminal: a token that reaches them is
// permanently unresolvable. Which initial state a send receives is a policy
// decision made outside this package.
package lifecycle

import qerrors "github.com/qshield/qshield-go/internal/errors"

// MessageState is the lifecycle state of one stored envelope.
type MessageState uint8

const (
	// StateStored is the only state a fetch or read succeeds from
	StateStored MessageState = iota + 1

	// StatePendingApproval holds the envelope until an operator approves it
	StatePendingApproval

	// StateRequireReauth holds the envelope until the sender reauthenticates
	StateRequireReauth

	// StateBlocked marks a send the policy refused. Terminal.
	StateBlocked

	// StateDeleted marks an envelope consumed by a read. Terminal.
	StateDeleted

	// StateExpired marks an envelope whose TTL lapsed unread. Terminal.
	StateExpired
)

var stateNames = map[MessageState]string{
	StateStored:          "stored",
	StatePendingApproval: "pending_approval",
	StateRequireReauth:   "require_reauth",
	StateBlocked:         "blocked",
	StateDeleted:         "deleted",
	StateExpired:         "expired",
}

// String returns the wire name of the state.
func (s MessageState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the state permits no further transitions.
func (s MessageState) IsTerminal() bool {
	return s == StateBlocked || s == StateDeleted || s == StateExpired
}

// MarshalText implements encoding.TextMarshaler so states serialize as their
// wire names in JSON envelopes.
func (s MessageState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MessageState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return qerrors.ErrInvalidTransition
}

// ParseMessageState parses a wire state name.
func ParseMessageState(name string) (MessageState, error) {
	var s MessageState
	if err := s.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	return s, nil
}
