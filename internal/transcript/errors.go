package transcript

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfOrderResult marks an ordering violation. It always indicates a bug
	// in the code driving the transcript and must abort the run.
	ErrOutOfOrderResult = errors.New("out-of-order transcript append")

	// ErrDuplicateRequestID is returned when a request turn reuses an id.
	ErrDuplicateRequestID = errors.New("duplicate request id")
)

// OutOfOrderError describes which append broke the ordering invariant.
type OutOfOrderError struct {
	Role    Role
	Reason  string
	Pending []string
	Got     []string
}

func (e *OutOfOrderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s turn: %s", ErrOutOfOrderResult, e.Role, e.Reason)
	if len(e.Pending) > 0 {
		fmt.Fprintf(&b, " (pending=[%s]", strings.Join(e.Pending, ","))
		if e.Got != nil {
			fmt.Fprintf(&b, " got=[%s]", strings.Join(e.Got, ","))
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *OutOfOrderError) Unwrap() error { return ErrOutOfOrderResult }
