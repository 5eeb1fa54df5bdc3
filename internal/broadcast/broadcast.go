// Package broadcast announces the name of the day on a wall-clock schedule
// and fires the midnight reset that lets the next day select anew.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"namebot/internal/runtime/supervisor"
	"namebot/internal/selector"
	kit "namebot/internal/transport"
	logx "namebot/pkg/logx"
)

type Config struct {
	// Daily delivery time, wall clock in Location.
	Hour   int
	Minute int

	// Daily reset time, wall clock in Location.
	ResetHour   int
	ResetMinute int

	Location     *time.Location
	RetryBackoff time.Duration

	// TargetChat is the fixed destination. When zero, delivery goes to every
	// group chat the adapter has seen traffic from.
	TargetChat int64
}

func (c *Config) normalize() {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Minute
	}
}

type Service struct {
	sel    *selector.Selector
	sender kit.Adapter
	groups kit.GroupLister // nil when the adapter can't enumerate chats
	log    logx.Logger

	now func() time.Time // test hook

	mu   sync.Mutex
	cfg  Config
	cron *cron.Cron

	// changed wakes the delivery loop so it recomputes the next occurrence
	// after a config swap. Buffered so Apply never blocks.
	changed chan struct{}
}

func New(cfg Config, sel *selector.Selector, sender kit.Adapter, log logx.Logger) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sel:     sel,
		sender:  sender,
		log:     log,
		now:     time.Now,
		cfg:     cfg,
		changed: make(chan struct{}, 1),
	}
	if gl, ok := sender.(kit.GroupLister); ok {
		s.groups = gl
	}
	return s
}

// Start launches the reset cron and the delivery loop under sup. The loop is
// restarted on failure so a panic inside delivery never silences the daily
// announcement for good.
func (s *Service) Start(sup *supervisor.Supervisor) error {
	s.mu.Lock()
	c, err := s.startResetCron(s.cfg)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.cron = c
	s.mu.Unlock()

	sup.GoRestart("broadcast.loop", s.run, supervisor.WithStopOnCleanExit(false))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply swaps the schedule at runtime. The delivery loop recomputes its next
// occurrence and the reset cron is rebuilt with the new time and location.
func (s *Service) Apply(cfg Config) error {
	cfg.normalize()

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	restartCron := s.cron != nil &&
		(old.ResetHour != cfg.ResetHour || old.ResetMinute != cfg.ResetMinute || old.Location.String() != cfg.Location.String())
	if restartCron {
		s.cron.Stop()
		c, err := s.startResetCron(cfg)
		if err != nil {
			s.cfg = old
			s.mu.Unlock()
			return err
		}
		s.cron = c
	}
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}

	s.log.Info("broadcast schedule applied",
		logx.String("at", fmt.Sprintf("%02d:%02d", cfg.Hour, cfg.Minute)),
		logx.String("reset", fmt.Sprintf("%02d:%02d", cfg.ResetHour, cfg.ResetMinute)),
		logx.String("tz", cfg.Location.String()))
	return nil
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// startResetCron schedules the daily pick-cache reset. Caller holds s.mu.
func (s *Service) startResetCron(cfg Config) (*cron.Cron, error) {
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithLocation(cfg.Location),
	)
	spec := fmt.Sprintf("%d %d * * *", cfg.ResetMinute, cfg.ResetHour)
	if _, err := c.AddFunc(spec, func() {
		s.log.Info("daily reset fired")
		s.sel.ResetDay()
	}); err != nil {
		return nil, fmt.Errorf("schedule reset %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

func (s *Service) run(ctx context.Context) error {
	for {
		cfg := s.config()
		now := s.now().In(cfg.Location)
		next := nextOccurrence(now, cfg.Hour, cfg.Minute)
		s.log.Debug("next broadcast scheduled",
			logx.Time("at", next), logx.Duration("in", next.Sub(now)))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.changed:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if isWeekend(next) {
			s.log.Info("weekend, skipping broadcast", logx.String("weekday", next.Weekday().String()))
			continue
		}

		// A failed selection carries only the user-facing failure text; the
		// announcement must not deliver that. Back off and try the cycle again.
		res := s.sel.Today(ctx)
		if res.Pick == nil {
			s.log.Error("selection failed, skipping delivery", logx.Duration("retry_in", cfg.RetryBackoff))
			if err := sleep(ctx, cfg.RetryBackoff); err != nil {
				return err
			}
			continue
		}
		if err := s.deliver(ctx, res.Text); err != nil {
			s.log.Error("broadcast delivery failed", logx.Err(err), logx.Duration("retry_in", cfg.RetryBackoff))
			if err := sleep(ctx, cfg.RetryBackoff); err != nil {
				return err
			}
			continue
		}
		s.log.Info("broadcast delivered", logx.String("name", res.Pick.DisplayName))
	}
}

// deliver sends the announcement. With a fixed target any send error is
// returned for retry; when fanning out to known groups only a total failure
// counts, partial delivery is logged and accepted.
func (s *Service) deliver(ctx context.Context, text string) error {
	cfg := s.config()
	opt := &kit.SendOptions{ParseMode: "Markdown"}

	if cfg.TargetChat != 0 {
		_, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: cfg.TargetChat}, text, opt)
		return err
	}

	if s.groups == nil {
		s.log.Warn("no broadcast target configured and adapter lists no groups")
		return nil
	}
	targets := s.groups.KnownGroups()
	if len(targets) == 0 {
		s.log.Warn("no known group chats to broadcast to")
		return nil
	}

	failed := 0
	var lastErr error
	for _, to := range targets {
		if _, err := s.sender.SendText(ctx, to, text, opt); err != nil {
			failed++
			lastErr = err
			s.log.Warn("group broadcast failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		}
	}
	if failed == len(targets) {
		return fmt.Errorf("all %d group sends failed: %w", failed, lastErr)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextOccurrence returns the next wall-clock hh:mm strictly after now, in
// now's location. time.Date normalization keeps this correct across DST and
// month boundaries.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
