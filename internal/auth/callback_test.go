package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"kite-agent-bridge/internal/types"
)

type fakeExchanger struct {
	calls  int
	tokens []string
	creds  types.Credentials
	err    error
}

func (f *fakeExchanger) GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error) {
	f.calls++
	f.tokens = append(f.tokens, requestToken)
	return f.creds, f.err
}

type fakeScheduler struct {
	delays []time.Duration
}

func (f *fakeScheduler) ScheduleShutdown(delay time.Duration) {
	f.delays = append(f.delays, delay)
}

func TestHandleRejectsUnsuccessfulStatus(t *testing.T) {
	ex := &fakeExchanger{}
	cb := NewCallback(ex, Options{})

	for _, status := range []string{"FAILED", "cancelled", "error"} {
		_, err := cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok", Status: status})
		if !errors.Is(err, types.ErrLoginNotSuccessful) {
			t.Errorf("status %s: expected ErrLoginNotSuccessful, got %v", status, err)
		}
	}

	if ex.calls != 0 {
		t.Errorf("Expected no exchange, got %d", ex.calls)
	}
	if cb.State() != AwaitingRedirect {
		t.Errorf("Expected AwaitingRedirect, got %s", cb.State())
	}
}

func TestHandleAcceptsSuccessCaseInsensitively(t *testing.T) {
	for _, status := range []string{"success", "SUCCESS", "Success", ""} {
		ex := &fakeExchanger{creds: types.Credentials{UserID: "AB1234"}}
		cb := NewCallback(ex, Options{})

		creds, err := cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok", Status: status})
		if err != nil {
			t.Errorf("status %q: unexpected error %v", status, err)
			continue
		}
		if creds.UserID != "AB1234" {
			t.Errorf("status %q: expected user AB1234, got %s", status, creds.UserID)
		}
		if cb.State() != Authenticated {
			t.Errorf("status %q: expected Authenticated, got %s", status, cb.State())
		}
	}
}

func TestHandleRequiresRequestToken(t *testing.T) {
	ex := &fakeExchanger{}
	cb := NewCallback(ex, Options{})

	_, err := cb.Handle(context.Background(), types.LoginRedirect{Status: "success"})
	if !errors.Is(err, types.ErrMissingToken) {
		t.Errorf("Expected ErrMissingToken, got %v", err)
	}
	if ex.calls != 0 {
		t.Error("Expected no exchange without a token")
	}
}

func TestHandleExchangesExactlyOnce(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("Token is invalid or has expired.")}
	cb := NewCallback(ex, Options{})

	_, err := cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok-1", Status: "success"})
	if !errors.Is(err, types.ErrAuthExchangeFailed) {
		t.Fatalf("Expected ErrAuthExchangeFailed, got %v", err)
	}
	if ex.calls != 1 || ex.tokens[0] != "tok-1" {
		t.Errorf("Expected one exchange with tok-1, got %v", ex.tokens)
	}
	if cb.State() != AwaitingRedirect {
		t.Errorf("Expected AwaitingRedirect after failure, got %s", cb.State())
	}
}

func TestRunOnceSchedulesShutdownOnSuccessOnly(t *testing.T) {
	sched := &fakeScheduler{}
	ex := &fakeExchanger{err: errors.New("boom")}
	cb := NewCallback(ex, Options{RunOnce: true, ShutdownDelay: 3 * time.Second, Scheduler: sched})

	_, _ = cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok"})
	if len(sched.delays) != 0 {
		t.Fatalf("Expected no shutdown after failure, got %v", sched.delays)
	}

	ex.err = nil
	if _, err := cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(sched.delays) != 1 || sched.delays[0] != 3*time.Second {
		t.Errorf("Expected one 3s shutdown, got %v", sched.delays)
	}
}

func TestPersistentModeNeverSchedules(t *testing.T) {
	sched := &fakeScheduler{}
	cb := NewCallback(&fakeExchanger{}, Options{Scheduler: sched, ShutdownDelay: time.Second})

	if _, err := cb.Handle(context.Background(), types.LoginRedirect{RequestToken: "tok"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(sched.delays) != 0 {
		t.Errorf("Expected no shutdown, got %v", sched.delays)
	}
}
