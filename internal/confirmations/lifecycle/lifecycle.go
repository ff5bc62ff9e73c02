// Package lifecycle holds the confirmation state machine and the re-request
// cooldown rule. It has no storage or clock of its own.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"rideshare/pkg/model"
)

type Action string

const (
	ActionRequest   Action = "request"
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionCancel    Action = "cancel"
	ActionReRequest Action = "rerequest"
)

var ErrInvalidTransition = errors.New("invalid confirmation transition")

type edge struct {
	from   model.ConfirmationStatus
	action Action
}

var transitions = map[edge]model.ConfirmationStatus{
	{"", ActionRequest}:                     model.StatusPending,
	{model.StatusPending, ActionAccept}:     model.StatusAccepted,
	{model.StatusPending, ActionReject}:     model.StatusRejected,
	{model.StatusAccepted, ActionCancel}:    model.StatusRejected,
	{model.StatusRejected, ActionReRequest}: model.StatusPending,
}

// Transition returns the status reached by applying action to from.
func Transition(from model.ConfirmationStatus, action Action) (model.ConfirmationStatus, error) {
	to, ok := transitions[edge{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %q confirmation", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Stamps reports whether the action records the owner's decision time in
// confirmed_at.
func Stamps(action Action) bool {
	switch action {
	case ActionAccept, ActionReject, ActionCancel:
		return true
	}
	return false
}

const minuteMs = int64(time.Minute / time.Millisecond)

type Cooldown struct {
	Allowed          bool      `json:"allowed"`
	RemainingMinutes int       `json:"remaining_minutes"`
	RetryAt          time.Time `json:"retry_at"`
}

// CheckCooldown applies the re-request wait. Remaining minutes are
// ceil((cooldown - elapsed) / 1 minute) computed on milliseconds, so 9m01s
// elapsed of a 10m cooldown still reports 1 minute. A rejection stamped in
// the future counts as zero elapsed, and RetryAt then runs from now.
func CheckCooldown(rejectedAt, now time.Time, cooldown time.Duration) Cooldown {
	if rejectedAt.After(now) {
		rejectedAt = now
	}
	retryAt := rejectedAt.Add(cooldown)

	elapsedMs := now.Sub(rejectedAt).Milliseconds()
	cooldownMs := cooldown.Milliseconds()

	if elapsedMs >= cooldownMs {
		return Cooldown{Allowed: true, RetryAt: retryAt}
	}

	remainingMs := cooldownMs - elapsedMs
	return Cooldown{
		Allowed:          false,
		RemainingMinutes: int((remainingMs + minuteMs - 1) / minuteMs),
		RetryAt:          retryAt,
	}
}
