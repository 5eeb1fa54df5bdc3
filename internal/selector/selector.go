// Package selector decides the name of the day.
//
// It is a small state machine: the first request of a calendar date picks a
// random catalog entry (avoiding recently picked ids), caches it, and bumps
// its usage counter; later requests that day replay the cached answer. The
// midnight reset clears the cache without touching the anti-repeat window.
package selector

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"namebot/internal/catalog"
	logx "namebot/pkg/logx"
)

// historyLimit bounds the anti-repeat window: ids picked on the last five
// distinct selections are excluded from new ones when the catalog is big
// enough to allow it.
const historyLimit = 5

// Result is what a "who is it today" request produces. Pick is nil when the
// selection failed; Text is always safe to send to the user.
type Result struct {
	Text string
	Pick *catalog.Entry
}

type Selector struct {
	store    *catalog.Store
	log      logx.Logger
	selfName string
	loc      *time.Location

	// test hooks
	now      func() time.Time
	randIntN func(n int) int

	// mu guards the whole check-date/select/cache/increment sequence so two
	// concurrent callers can't both observe "no pick today".
	mu      sync.Mutex
	curDate string // "2006-01-02" in loc; "" when no pick is cached
	curPick *catalog.Entry
	recent  []int64 // FIFO of recently picked ids, oldest first
}

func New(store *catalog.Store, selfName string, loc *time.Location, log logx.Logger) *Selector {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{
		store:    store,
		log:      log,
		selfName: selfName,
		loc:      loc,
		now:      time.Now,
		randIntN: rand.Intn,
	}
}

// Today returns the pick for the current calendar date, selecting one if this
// is the first request of the day. Repeat calls on the same date return the
// cached answer and do not touch usage counters. It never returns an error:
// on store failure the Result carries a generic failure text and a nil Pick.
func (s *Selector) Today(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.now().In(s.loc).Format(time.DateOnly)

	if s.curDate == today && s.curPick != nil {
		s.log.Debug("returning cached pick for today", logx.String("name", s.curPick.DisplayName))
		return Result{
			Text: fmt.Sprintf("__Я уже говорил__.\n\n**%s** - сегодня величайшего зовут так.", s.curPick.DisplayName),
			Pick: s.curPick,
		}
	}

	id, err := s.pickExcludingRecent(ctx)
	if err != nil {
		// Named fallback policy: a failed random selection falls back to the
		// fixed self identity instead of aborting outright.
		s.log.Warn("random selection failed, falling back to self id", logx.Err(err), logx.Int64("id", catalog.SelfID))
		id = catalog.SelfID
	}

	entry, err := s.store.FindByID(ctx, id)
	if err != nil {
		s.log.Error("failed loading selected entry", logx.Int64("id", id), logx.Err(err))
		return failure()
	}
	if err := s.store.IncrementUsage(ctx, entry.ID); err != nil {
		s.log.Error("failed incrementing usage", logx.Int64("id", entry.ID), logx.Err(err))
		return failure()
	}

	s.curDate = today
	s.curPick = &entry
	s.remember(entry.ID)

	var text string
	if entry.ID == catalog.SelfID && s.selfName != "" {
		text = fmt.Sprintf("**Вот это да!**\nСегодня %s и есть %s. Удивительно.", s.selfName, s.selfName)
	} else {
		text = fmt.Sprintf("**%s**, - сегодня величайшего зовут так.", entry.DisplayName)
	}

	s.log.Info("selected new pick for today",
		logx.String("name", entry.DisplayName), logx.Int64("id", entry.ID), logx.String("date", today))
	return Result{Text: text, Pick: s.curPick}
}

func failure() Result {
	return Result{Text: "Произошла ошибка при выборе имени на сегодня."}
}

// ResetDay clears the per-day cache so the next Today() call selects anew.
// The anti-repeat window deliberately survives: only natural eviction trims it.
func (s *Selector) ResetDay() {
	s.mu.Lock()
	s.curDate = ""
	s.curPick = nil
	s.mu.Unlock()
	s.log.Debug("daily pick cache cleared")
}

// pickExcludingRecent chooses a random id from [minId, maxId] excluding the
// anti-repeat window, unless exclusion would leave nothing to choose from
// (catalog no larger than the window), in which case the full range is used.
// Caller holds s.mu.
func (s *Selector) pickExcludingRecent(ctx context.Context) (int64, error) {
	lo, hi, err := s.store.IDRange(ctx)
	if err != nil {
		return 0, err
	}

	candidates := make([]int64, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		if !slices.Contains(s.recent, id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		for id := lo; id <= hi; id++ {
			candidates = append(candidates, id)
		}
	}

	picked := candidates[s.randIntN(len(candidates))]
	s.log.Debug("selected random id",
		logx.Int64("id", picked), logx.Int("candidates", len(candidates)))
	return picked, nil
}

// remember appends an id to the anti-repeat window, skipping ids already
// present and evicting the oldest beyond the limit. Caller holds s.mu.
func (s *Selector) remember(id int64) {
	if slices.Contains(s.recent, id) {
		return
	}
	s.recent = append(s.recent, id)
	if len(s.recent) > historyLimit {
		s.recent = s.recent[len(s.recent)-historyLimit:]
	}
}
