package validation

import "github.com/vietddude/boatwatch/internal/core/domain"

// transitions lists the legal moves out of each non-terminal status. Validated and
// rejected are terminal here; overriding them is an audited administrative path.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusPending:    {domain.StatusValidated, domain.StatusRejected, domain.StatusSuspicious},
	domain.StatusSuspicious: {domain.StatusValidated, domain.StatusRejected, domain.StatusPending},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to domain.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s domain.Status) bool {
	return len(transitions[s]) == 0
}
