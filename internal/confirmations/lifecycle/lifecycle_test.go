package lifecycle

import (
	"errors"
	"testing"
	"time"

	"rideshare/pkg/model"
)

func TestTransition(t *testing.T) {
	statuses := []model.ConfirmationStatus{"", model.StatusPending, model.StatusAccepted, model.StatusRejected}
	actions := []Action{ActionRequest, ActionAccept, ActionReject, ActionCancel, ActionReRequest}

	allowed := map[model.ConfirmationStatus]map[Action]model.ConfirmationStatus{
		"":                   {ActionRequest: model.StatusPending},
		model.StatusPending:  {ActionAccept: model.StatusAccepted, ActionReject: model.StatusRejected},
		model.StatusAccepted: {ActionCancel: model.StatusRejected},
		model.StatusRejected: {ActionReRequest: model.StatusPending},
	}

	for _, from := range statuses {
		for _, action := range actions {
			want, ok := allowed[from][action]
			got, err := Transition(from, action)

			if ok {
				if err != nil || got != want {
					t.Errorf("%q --%s--> want %q, got %q (err %v)", from, action, want, got, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%q --%s--> expected invalid transition, got %q %v", from, action, got, err)
			}
		}
	}
}

func TestStamps(t *testing.T) {
	if !Stamps(ActionAccept) || !Stamps(ActionCancel) || Stamps(ActionReRequest) {
		t.Errorf("unexpected stamping rules")
	}
}

func TestCheckCooldown(t *testing.T) {
	rejectedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	cooldown := 10 * time.Minute

	tests := []struct {
		name          string
		elapsed       time.Duration
		wantAllowed   bool
		wantRemaining int
	}{
		{"just rejected", 0, false, 10},
		{"one millisecond", time.Millisecond, false, 10},
		{"one minute", time.Minute, false, 9},
		{"one minute plus", time.Minute + time.Second, false, 9},
		{"nine minutes one second", 9*time.Minute + time.Second, false, 1},
		{"last millisecond", cooldown - time.Millisecond, false, 1},
		{"exactly at cooldown", cooldown, true, 0},
		{"well after", time.Hour, true, 0},
		{"clock skew", -5 * time.Minute, false, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCooldown(rejectedAt, rejectedAt.Add(tt.elapsed), cooldown)
			if got.Allowed != tt.wantAllowed {
				t.Errorf("allowed = %v, want %v", got.Allowed, tt.wantAllowed)
			}
			if got.RemainingMinutes != tt.wantRemaining {
				t.Errorf("remaining = %d, want %d", got.RemainingMinutes, tt.wantRemaining)
			}
			if tt.elapsed >= 0 && !got.RetryAt.Equal(rejectedAt.Add(cooldown)) {
				t.Errorf("retry at = %s", got.RetryAt)
			}
		})
	}
}

func TestCheckCooldown_FutureRejectionRetryAtFromNow(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	got := CheckCooldown(now.Add(5*time.Minute), now, 10*time.Minute)

	if got.Allowed || got.RemainingMinutes != 10 {
		t.Fatalf("got %+v, want 10 minutes remaining", got)
	}
	if want := now.Add(10 * time.Minute); !got.RetryAt.Equal(want) {
		t.Errorf("retry at = %s, want %s", got.RetryAt, want)
	}
}

func TestCheckCooldown_MatchesFormula(t *testing.T) {
	rejectedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	const cooldownMs = 10 * 60 * 1000

	for elapsedMs := int64(0); elapsedMs < cooldownMs; elapsedMs += 7919 {
		got := CheckCooldown(rejectedAt, rejectedAt.Add(time.Duration(elapsedMs)*time.Millisecond), 10*time.Minute)

		diff := cooldownMs - elapsedMs
		want := int(diff / 60000)
		if diff%60000 != 0 {
			want++
		}
		if got.Allowed || got.RemainingMinutes != want {
			t.Fatalf("elapsed %dms: got %+v, want remaining %d", elapsedMs, got, want)
		}
	}
}
