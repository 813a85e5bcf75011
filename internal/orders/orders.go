package orders

import (
	"errors"
	"fmt"
	"math"
	"strings"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

// Order statuses. NEW -> (PARTIALLY_FILLED)* -> FILLED | CANCELED | REJECTED | EXPIRED
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

var ErrInvalidTransition = errors.New("invalid order transition")

// volumeEpsilon absorbs float rounding when comparing executed volumes
const volumeEpsilon = 1e-12

// Normalize maps exchange spellings to the canonical status names.
func Normalize(status string) string {
	s := strings.ToUpper(strings.TrimSpace(status))
	switch s {
	case "CANCELLED":
		return StatusCanceled
	case "PARTIAL", "PARTIALLY_FILL", "PARTIAL_FILLED":
		return StatusPartiallyFilled
	}
	return s
}

func IsKnown(status string) bool {
	switch Normalize(status) {
	case StatusNew, StatusPartiallyFilled, StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further update may follow status.
func IsTerminal(status string) bool {
	switch Normalize(status) {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Cancelable reports whether an order in status can still be canceled.
func Cancelable(status string) bool {
	switch Normalize(status) {
	case StatusNew, StatusPartiallyFilled:
		return true
	}
	return false
}

// Transition validates that next may follow prev for the same order.
// A nil prev accepts any known status as the first observation.
func Transition(prev, next *gatewayv1.Order) error {
	if next == nil {
		return fmt.Errorf("%w: missing order", ErrInvalidTransition)
	}
	to := Normalize(next.Status)
	if !IsKnown(to) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	}
	if next.ExecutedVolume < 0 || next.ExecutedVolume > next.Quantity+volumeEpsilon {
		return fmt.Errorf("%w: executed volume %v outside [0, %v]", ErrInvalidTransition, next.ExecutedVolume, next.Quantity)
	}
	if prev == nil {
		return nil
	}

	if prev.Exchange != next.Exchange || prev.ID != next.ID {
		return fmt.Errorf("%w: identity changed from %s/%s to %s/%s", ErrInvalidTransition, prev.Exchange, prev.ID, next.Exchange, next.ID)
	}
	from := Normalize(prev.Status)
	if IsTerminal(from) {
		return fmt.Errorf("%w: order %s already %s", ErrInvalidTransition, next.ID, from)
	}
	if next.ExecutedVolume+volumeEpsilon < prev.ExecutedVolume {
		return fmt.Errorf("%w: executed volume decreased from %v to %v", ErrInvalidTransition, prev.ExecutedVolume, next.ExecutedVolume)
	}
	if from == StatusPartiallyFilled && to == StatusNew {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// DeriveStatus computes the status of an order from its fill progress, for
// adapters whose exchange only reports open/closed.
func DeriveStatus(quantity, executed float64, closed bool) string {
	filled := quantity > 0 && math.Abs(quantity-executed) <= volumeEpsilon
	switch {
	case filled:
		return StatusFilled
	case closed:
		return StatusCanceled
	case executed > 0:
		return StatusPartiallyFilled
	default:
		return StatusNew
	}
}

// Unchanged reports whether next repeats the state already recorded in prev.
// Exchanges may report the same fill through several paths; such repeats
// are not transitions.
func Unchanged(prev, next *gatewayv1.Order) bool {
	if prev == nil || next == nil {
		return false
	}
	return Normalize(prev.Status) == Normalize(next.Status) &&
		math.Abs(prev.ExecutedVolume-next.ExecutedVolume) <= volumeEpsilon
}
