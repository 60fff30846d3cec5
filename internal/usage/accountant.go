// Package usage accumulates token and cost consumption across the model
// round-trips of a run.
package usage

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrInvalidUsage is returned for negative (or NaN) usage values. It is a
// programming error in the caller and aborts the run.
var ErrInvalidUsage = errors.New("invalid usage")

// Record is the consumption of one round-trip, or a running total.
type Record struct {
	InputUnits    int64   `json:"input_units"`
	OutputUnits   int64   `json:"output_units"`
	EstimatedCost float64 `json:"estimated_cost"`
	RoundTrips    int     `json:"round_trips"`
}

// Add returns the sum of r and o.
func (r Record) Add(o Record) Record {
	return Record{
		InputUnits:    r.InputUnits + o.InputUnits,
		OutputUnits:   r.OutputUnits + o.OutputUnits,
		EstimatedCost: r.EstimatedCost + o.EstimatedCost,
		RoundTrips:    r.RoundTrips + o.RoundTrips,
	}
}

// TotalUnits is input plus output.
func (r Record) TotalUnits() int64 { return r.InputUnits + r.OutputUnits }

// Accountant keeps the running total for one run.
type Accountant struct {
	mu      sync.Mutex
	total   Record
	history []Record
}

func NewAccountant() *Accountant {
	return &Accountant{}
}

// Record adds one round-trip's consumption to the running total.
func (a *Accountant) Record(inputUnits, outputUnits int64, estimatedCost float64) error {
	if inputUnits < 0 || outputUnits < 0 || !(estimatedCost >= 0) {
		return fmt.Errorf("%w: input=%d output=%d cost=%v", ErrInvalidUsage, inputUnits, outputUnits, estimatedCost)
	}

	rec := Record{
		InputUnits:    inputUnits,
		OutputUnits:   outputUnits,
		EstimatedCost: estimatedCost,
		RoundTrips:    1,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = a.total.Add(rec)
	a.history = append(a.history, rec)
	return nil
}

// Totals returns a snapshot of the running total.
func (a *Accountant) Totals() Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// History returns every recorded round-trip in order.
func (a *Accountant) History() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.history)
}
