package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock drives a breaker's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(cfg)
	b.now = clk.Now
	return b, clk
}

func fail() error { return errTest }
func ok() error   { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "journal"})
	if b.maxFailures != 5 || b.cooldown != 30*time.Second || b.probes != 3 {
		t.Errorf("defaults = %d / %v / %d", b.maxFailures, b.cooldown, b.probes)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_PassesErrorThrough(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3})
	if err := b.Do(fail); !errors.Is(err, errTest) {
		t.Errorf("err = %v, want errTest", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v after one failure, want closed", b.State())
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Minute})
	for range 3 {
		_ = b.Do(fail)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("open breaker: err = %v, called = %v", err, called)
	}
}

func TestBreaker_SuccessResetsFailureRun(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3})
	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(ok)
	_ = b.Do(fail)
	_ = b.Do(fail)
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute, Probes: 2})
	_ = b.Do(fail)

	clk.Advance(30 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state = %v before cooldown, want open", b.State())
	}
	clk.Advance(30 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v after cooldown, want half-open", b.State())
	}

	if err := b.Do(ok); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v after one probe, want half-open", b.State())
	}
	if err := b.Do(ok); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v after probes, want closed", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
	_ = b.Do(fail)
	clk.Advance(time.Minute)

	if err := b.Do(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want errTest", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open again", b.State())
	}
	if err := b.Do(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen during new cooldown", err)
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second, Probes: 1})
	_ = b.Do(fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	var got []string
	b, clk := newTestBreaker(BreakerConfig{
		Name:        "pg",
		MaxFailures: 1,
		Cooldown:    time.Second,
		Probes:      1,
		OnStateChange: func(name string, from, to State) {
			got = append(got, name+":"+from.String()+"->"+to.String())
		},
	})
	_ = b.Do(fail)
	clk.Advance(time.Second)
	_ = b.Do(ok)

	want := []string{"pg:closed->open", "pg:open->half-open", "pg:half-open->closed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour})
	_ = b.Do(fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v after Reset, want closed", b.State())
	}
	if err := b.Do(ok); err != nil {
		t.Errorf("call after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
