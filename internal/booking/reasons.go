package booking

import (
	"errors"
	"fmt"

	"ms-booking/internal/models"
)

// Rejection is a business-rule refusal: the request was understood, ran
// against current state, and lost. No state was mutated other than the
// idempotent expiry transitions. The reason is specific on purpose; an
// expired code, a wrong name and a taken seat must surface as different
// messages.
type Rejection struct {
	Reason models.RejectionReason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason models.RejectionReason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ErrStorage marks transient storage failures. The caller may safely retry
// the identical request: nothing was committed.
var ErrStorage = errors.New("storage failure")

// ErrInternal marks invariant violations found in the store, such as two
// booked rows for one (seat, level). Not retryable; logged loudly.
var ErrInternal = errors.New("internal invariant violation")
