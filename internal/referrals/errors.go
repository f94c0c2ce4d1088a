package referrals

import (
	"errors"
	"fmt"
	"strings"

	"github.com/carebridge/referral-hub/internal/resources"
)

var (
	ErrEmptyRequest     = errors.New("at least one resource must be requested")
	ErrBlankSpecialist  = errors.New("required specialist must not be blank")
	ErrSelfReferral     = errors.New("cannot refer to your own hospital")
	ErrSenderUnresolved = errors.New("sender hospital could not be resolved")
	ErrPermissionDenied = errors.New("hospital is not a party to this referral")
	ErrNotPending       = errors.New("referral is no longer pending")
)

// InsufficientResourcesError aborts an accept with no state change; the
// shortage list is what the caller shows the user.
type InsufficientResourcesError struct {
	Shortages []resources.Shortage
}

func (e *InsufficientResourcesError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", s.Resource, s.Requested, s.Available)
	}
	return "insufficient resources: " + strings.Join(parts, "; ")
}
