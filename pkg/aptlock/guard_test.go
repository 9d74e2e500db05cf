package aptlock

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner/runnertest"
)

func fastGuard(fake *runnertest.Fake) *Guard {
	return New(fake, zerolog.Nop(),
		WithLockFiles("/var/lib/dpkg/lock"),
		WithTimeout(100*time.Millisecond),
		WithBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }),
	)
}

func TestGuard_WaitFreeLocks(t *testing.T) {
	fake := runnertest.New()
	fake.SetPath("fuser", "/usr/bin/fuser")
	fake.On("fuser /", runnertest.Exit(1, ""))

	if err := fastGuard(fake).Wait(context.Background(), false); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if fake.Ran("rm") {
		t.Error("Expected no lock removal when locks are free")
	}
}

func TestGuard_WaitUntilReleased(t *testing.T) {
	fake := runnertest.New()
	fake.SetPath("fuser", "/usr/bin/fuser")

	polls := 0
	held := runnertest.OK("")
	held.Effect = func() {
		polls++
		if polls == 3 {
			fake.On("fuser /", runnertest.Exit(1, ""))
		}
	}
	fake.On("fuser /", held)

	if err := fastGuard(fake).Wait(context.Background(), false); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if polls != 3 {
		t.Errorf("Expected 3 polls while held, got %d", polls)
	}
}

func TestGuard_TimeoutWithoutEscalation(t *testing.T) {
	fake := runnertest.New()
	fake.SetPath("fuser", "/usr/bin/fuser")
	fake.On("fuser /", runnertest.OK(""))

	err := fastGuard(fake).Wait(context.Background(), false)
	if err == nil {
		t.Fatal("Expected lock timeout")
	}
	if !engine.HasCode(err, engine.ErrCodeLockTimeout) {
		t.Errorf("Expected LOCK_TIMEOUT, got %v", err)
	}
	if !engine.IsRetryable(err) {
		t.Error("Expected lock timeout to be retryable")
	}
	if fake.Ran("fuser -k") || fake.Ran("rm") || fake.Ran("dpkg") {
		t.Error("Expected no destructive action without break_locks")
	}
}

func TestGuard_TimeoutWithEscalation(t *testing.T) {
	fake := runnertest.New()
	fake.SetPath("fuser", "/usr/bin/fuser")
	fake.On("fuser /", runnertest.OK(""))

	if err := fastGuard(fake).Wait(context.Background(), true); err != nil {
		t.Fatalf("Wait with break_locks failed: %v", err)
	}
	for _, prefix := range []string{"fuser -k -KILL /var/lib/dpkg/lock", "rm -f /var/lib/dpkg/lock", "dpkg --configure -a"} {
		if !fake.Ran(prefix) {
			t.Errorf("Expected %q to run, got %v", prefix, fake.Lines())
		}
	}
}

func TestGuard_BreakReportsDpkgFailure(t *testing.T) {
	fake := runnertest.New()
	fake.On("dpkg --configure", runnertest.Exit(2, "dpkg: error"))

	if err := fastGuard(fake).Break(context.Background()); err == nil {
		t.Fatal("Expected error when dpkg --configure -a fails")
	}
	if fake.Ran("fuser") {
		t.Error("Expected fuser to be skipped when it is not installed")
	}
}

func TestGuard_NoFuser(t *testing.T) {
	fake := runnertest.New()

	held, err := fastGuard(fake).Held(context.Background())
	if err != nil {
		t.Fatalf("Held failed: %v", err)
	}
	if held {
		t.Error("Expected locks to be assumed free without fuser")
	}
	if len(fake.Calls) != 0 {
		t.Errorf("Expected no commands, got %v", fake.Lines())
	}
}
