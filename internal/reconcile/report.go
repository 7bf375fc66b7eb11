package reconcile

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Pass names.
const (
	PassSettlement = "settlement"
	PassExpiry     = "expiry"
	PassFulfilment = "fulfilment"
)

// PassReport counts what one pass did. Error is set when the batch could not be listed.
type PassReport struct {
	Pass         string `json:"pass"`
	Seen         int    `json:"seen"`
	Transitioned int    `json:"transitioned"`
	Unchanged    int    `json:"unchanged"`
	Failed       int    `json:"failed"`
	Error        string `json:"error,omitempty"`
}

func (p PassReport) fields() logrus.Fields {
	return logrus.Fields{
		"seen":         p.Seen,
		"transitioned": p.Transitioned,
		"unchanged":    p.Unchanged,
		"failed":       p.Failed,
	}
}

// CycleReport aggregates the passes of one cycle.
type CycleReport struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Passes   []PassReport  `json:"passes"`
}

// Pass returns the report for the named pass.
func (c CycleReport) Pass(name string) (PassReport, bool) {
	for _, p := range c.Passes {
		if p.Pass == name {
			return p, true
		}
	}
	return PassReport{}, false
}

// Transitioned sums transitions across passes.
func (c CycleReport) Transitioned() int {
	n := 0
	for _, p := range c.Passes {
		n += p.Transitioned
	}
	return n
}

// Failed sums per-order failures and listing failures across passes.
func (c CycleReport) Failed() int {
	n := 0
	for _, p := range c.Passes {
		n += p.Failed
		if p.Error != "" {
			n++
		}
	}
	return n
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeTransitioned
	outcomeFailed
)
