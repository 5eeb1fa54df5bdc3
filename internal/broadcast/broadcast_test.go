package broadcast

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"namebot/internal/catalog"
	"namebot/internal/selector"
	kit "namebot/internal/transport"
	logx "namebot/pkg/logx"
)

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		h, m int
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 2, 10, 0, 0, 0, loc),
			h:    15, m: 30,
			want: time.Date(2026, 3, 2, 15, 30, 0, 0, loc),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 3, 2, 16, 0, 0, 0, loc),
			h:    15, m: 30,
			want: time.Date(2026, 3, 3, 15, 30, 0, 0, loc),
		},
		{
			name: "exactly at target rolls over",
			now:  time.Date(2026, 3, 2, 15, 30, 0, 0, loc),
			h:    15, m: 30,
			want: time.Date(2026, 3, 3, 15, 30, 0, 0, loc),
		},
		{
			name: "month boundary",
			now:  time.Date(2026, 2, 28, 23, 0, 0, 0, loc),
			h:    15, m: 30,
			want: time.Date(2026, 3, 1, 15, 30, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := nextOccurrence(tt.now, tt.h, tt.m); !got.Equal(tt.want) {
				t.Fatalf("nextOccurrence(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestWeekendSkipChain(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	// Friday 2026-03-06 after delivery time; the next two occurrences land on
	// the weekend and must be skipped, so Monday is the next real delivery.
	now := time.Date(2026, 3, 6, 16, 0, 0, 0, loc)

	skipped := 0
	for {
		next := nextOccurrence(now, 15, 30)
		if !isWeekend(next) {
			if next.Weekday() != time.Monday {
				t.Fatalf("first non-weekend occurrence is %v (%s), want Monday", next, next.Weekday())
			}
			break
		}
		skipped++
		now = next
	}
	if skipped != 2 {
		t.Fatalf("skipped %d occurrences, want 2 (Saturday and Sunday)", skipped)
	}
}

func TestIsWeekend(t *testing.T) {
	t.Parallel()
	sat := time.Date(2026, 3, 7, 15, 30, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		d := sat.AddDate(0, 0, i)
		want := d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
		if got := isWeekend(d); got != want {
			t.Fatalf("isWeekend(%s) = %v, want %v", d.Weekday(), got, want)
		}
	}
}

// fakeSender records sends and fails for chat ids in failFor.
type fakeSender struct {
	sent     []kit.ChatTarget
	attempts int
	failFor  map[int64]bool
	groups   []kit.ChatTarget
}

func (f *fakeSender) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeSender) Stop(context.Context) error                    { return nil }

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, _ string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.attempts++
	if f.failFor[to.ChatID] {
		return kit.MessageRef{}, errors.New("send failed")
	}
	f.sent = append(f.sent, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) KnownGroups() []kit.ChatTarget { return f.groups }

func TestDeliverFixedTarget(t *testing.T) {
	t.Parallel()
	f := &fakeSender{failFor: map[int64]bool{}}
	s := New(Config{Hour: 15, Minute: 30, TargetChat: -100, Location: time.UTC}, nil, f, logx.Nop())

	if err := s.deliver(context.Background(), "hello"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(f.sent) != 1 || f.sent[0].ChatID != -100 {
		t.Fatalf("sent = %+v, want single send to -100", f.sent)
	}

	f.failFor[-100] = true
	if err := s.deliver(context.Background(), "hello"); err == nil {
		t.Fatal("deliver to failing fixed target returned nil error")
	}
}

func TestDeliverGroupFanOut(t *testing.T) {
	t.Parallel()
	f := &fakeSender{
		groups:  []kit.ChatTarget{{ChatID: 1}, {ChatID: 2}, {ChatID: 3}},
		failFor: map[int64]bool{2: true},
	}
	s := New(Config{Hour: 15, Minute: 30, Location: time.UTC}, nil, f, logx.Nop())

	// Partial failure is tolerated.
	if err := s.deliver(context.Background(), "hello"); err != nil {
		t.Fatalf("deliver with one failing group: %v", err)
	}
	if len(f.sent) != 2 {
		t.Fatalf("sent to %d groups, want 2", len(f.sent))
	}

	// Total failure is not.
	f.sent = nil
	f.failFor = map[int64]bool{1: true, 2: true, 3: true}
	if err := s.deliver(context.Background(), "hello"); err == nil {
		t.Fatal("deliver with all groups failing returned nil error")
	}
}

// runService drives the delivery loop with a frozen clock a few milliseconds
// before a Monday target, so each cycle fires almost immediately, then cancels
// and waits for the loop to return.
func runService(t *testing.T, s *Service, d time.Duration) {
	t.Helper()
	// Monday 2026-03-02, 5ms before the 15:30 target.
	frozen := time.Date(2026, 3, 2, 15, 29, 59, int(995*time.Millisecond), time.UTC)
	s.now = func() time.Time { return frozen }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	time.Sleep(d)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunSkipsDeliveryWhenSelectionFails(t *testing.T) {
	t.Parallel()
	store, err := catalog.Open(catalog.Config{Path: filepath.Join(t.TempDir(), "names.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Insert(context.Background(), "Ivan Petrov"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// Every selection fails from here on.
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	sel := selector.New(store, "Ivan Petrov", time.UTC, logx.Nop())

	f := &fakeSender{}
	s := New(Config{
		Hour: 15, Minute: 30,
		Location:     time.UTC,
		RetryBackoff: 5 * time.Millisecond,
		TargetChat:   -100,
	}, sel, f, logx.Nop())

	runService(t, s, 100*time.Millisecond)

	// The failure text never reaches the transport; the cycle just backs off.
	if f.attempts != 0 {
		t.Fatalf("sender was called %d times on failed selections, want 0", f.attempts)
	}
}

func TestRunRetriesAfterDeliveryFailure(t *testing.T) {
	t.Parallel()
	store, err := catalog.Open(catalog.Config{Path: filepath.Join(t.TempDir(), "names.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Insert(context.Background(), "Ivan Petrov"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	sel := selector.New(store, "Ivan Petrov", time.UTC, logx.Nop())

	f := &fakeSender{failFor: map[int64]bool{-100: true}}
	s := New(Config{
		Hour: 15, Minute: 30,
		Location:     time.UTC,
		RetryBackoff: 5 * time.Millisecond,
		TargetChat:   -100,
	}, sel, f, logx.Nop())

	runService(t, s, 100*time.Millisecond)

	// The loop survives failed sends and keeps retrying after the backoff.
	if f.attempts < 2 {
		t.Fatalf("sender attempted %d sends, want at least 2 (retry after backoff)", f.attempts)
	}
	if len(f.sent) != 0 {
		t.Fatalf("sent = %+v, want none (all sends fail)", f.sent)
	}
}

func TestApplyWakesLoop(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	s := New(Config{Hour: 15, Minute: 30, Location: time.UTC}, nil, f, logx.Nop())

	if err := s.Apply(Config{Hour: 9, Minute: 0, Location: time.UTC}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	select {
	case <-s.changed:
	default:
		t.Fatal("Apply did not signal the delivery loop")
	}
	if got := s.config(); got.Hour != 9 || got.Minute != 0 {
		t.Fatalf("config after Apply = %02d:%02d, want 09:00", got.Hour, got.Minute)
	}
	if got := s.config().RetryBackoff; got != time.Minute {
		t.Fatalf("RetryBackoff defaulted to %v, want 1m", got)
	}
}
