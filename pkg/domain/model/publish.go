package model

import (
	"fmt"
	"time"
)

// PublishState is the terminal state of a publish run
type PublishState string

const (
	PublishStateNoop           PublishState = "noop"
	PublishStateSuccess        PublishState = "success"
	PublishStatePartialFailure PublishState = "partial-failure"
)

// ActionStatus is the outcome of a single push action
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "succeeded"
	ActionFailed    ActionStatus = "failed"
	ActionSkipped   ActionStatus = "skipped"
)

// ActionOutcome records one attempted push action
type ActionOutcome struct {
	Kind       PushKind      `json:"kind"`
	RemoteName string        `json:"remote"`
	Target     string        `json:"target"`
	Status     ActionStatus  `json:"status"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

func (o ActionOutcome) String() string {
	s := fmt.Sprintf("%s %s %q to %s", o.Status, o.Kind, o.Target, o.RemoteName)
	if o.Error != "" {
		s += ": " + o.Error
	}
	return s
}

// PublishResult is what the publisher reports back to the build record
type PublishResult struct {
	State    PublishState    `json:"state"`
	Reason   string          `json:"reason,omitempty"`
	Outcomes []ActionOutcome `json:"outcomes,omitempty"`
}

// Failed reports whether any attempted action failed
func (r *PublishResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == ActionFailed {
			return true
		}
	}
	return false
}

// NewNoopResult returns the neutral result used when a gate suppresses publishing
func NewNoopResult(reason string) *PublishResult {
	return &PublishResult{State: PublishStateNoop, Reason: reason}
}
