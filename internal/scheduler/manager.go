package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/clock"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/guard"
	"github.com/ironhaven/worldserver/internal/repository"
)

// Config tunes the time manager. Zero values fall back to defaults.
type Config struct {
	// TickInterval is the tick loop cadence. The first tick is
	// phase-aligned to a wall-clock second boundary, bounding worst-case
	// fire latency to one interval.
	TickInterval time.Duration

	// SnapshotPeriod is the cadence of the best-effort sweep that
	// re-writes every durable in-memory event to the gateway, as a
	// defense against missed per-operation writes.
	SnapshotPeriod time.Duration

	// Now overrides the clock for tests. Must return whole-second
	// milliseconds.
	Now func() int64
}

const (
	defaultTickInterval   = 300 * time.Millisecond
	defaultSnapshotPeriod = time.Minute
)

// TimeManager is the durable time-event scheduler: one instance per
// process owns the event store and drives all due-event evaluation from a
// single tick loop. Game subsystems register actions through the
// lifecycle API and read back stats.
//
// In-memory state is authoritative while the process runs. Gateway writes
// are best-effort: a persistence failure is logged and the event keeps
// running on schedule with degraded durability.
type TimeManager struct {
	mu      sync.Mutex
	store   *eventStore
	actions map[string]Action

	db      repository.DBTX
	repo    repository.TimeEventRepository
	breaker *guard.CircuitBreaker
	logger  *slog.Logger

	tickInterval   time.Duration
	snapshotPeriod time.Duration
	now            func() int64

	// playerWork serializes per-player firings across ticks: a key is
	// present while a drain goroutine for that player is running.
	// Guarded by mu.
	playerWork map[string][]playerFiring

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTimeManager creates a scheduler over the given persistence gateway.
func NewTimeManager(db repository.DBTX, repo repository.TimeEventRepository, logger *slog.Logger, cfg Config) *TimeManager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.SnapshotPeriod <= 0 {
		cfg.SnapshotPeriod = defaultSnapshotPeriod
	}
	if cfg.Now == nil {
		cfg.Now = clock.NowMs
	}
	return &TimeManager{
		store:          newEventStore(),
		actions:        make(map[string]Action),
		playerWork:     make(map[string][]playerFiring),
		db:             db,
		repo:           repo,
		breaker:        guard.NewCircuitBreaker(5, 30*time.Second),
		logger:         logger.With("component", "time_manager"),
		tickInterval:   cfg.TickInterval,
		snapshotPeriod: cfg.SnapshotPeriod,
		now:            cfg.Now,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// RegisterAction maps an actionType discriminator to a handler so that
// recovery can reconstruct callbacks for durable events. Consumers call
// this once at startup, before Recover.
func (tm *TimeManager) RegisterAction(actionType string, action Action) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.actions[actionType] = action
}

// EventOptions carries the optional fields of a register call.
type EventOptions struct {
	PlayerID   string
	WorldID    string
	Persistent bool
	ActionType string
	Metadata   json.RawMessage
}

// RegisterPeriodicEvent creates (or overwrites) a periodic event firing
// every intervalSec seconds. Persistent events are keyed by name so the
// id is stable across restarts. Returns the event id.
func (tm *TimeManager) RegisterPeriodicEvent(ctx context.Context, name string, intervalSec int64, action Action, opts EventOptions) (string, error) {
	if err := domain.ValidateEventName(name); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	if intervalSec <= 0 {
		return "", domain.ErrValidation(fmt.Sprintf("interval must be positive, got %d", intervalSec))
	}

	nowMs := tm.now()
	id := name
	if !opts.Persistent {
		id = syntheticID(name)
	}

	if opts.Persistent && tm.adoptPeriodic(ctx, id, intervalSec, action) {
		return id, nil
	}

	event := &domain.TimeEvent{
		ID:              id,
		Type:            domain.EventPeriodic,
		Name:            name,
		IntervalSec:     intervalSec,
		LastExecutionMs: nowMs,
		Status:          domain.EventActive,
		PlayerID:        opts.PlayerID,
		WorldID:         opts.WorldID,
		ActionType:      opts.ActionType,
		Metadata:        opts.Metadata,
		Persistent:      opts.Persistent,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	tm.mu.Lock()
	tm.store.addPeriodic(&entry{event: event, action: action})
	tm.mu.Unlock()

	if opts.Persistent {
		tm.persist(ctx, "persist.create", event.Name, func(ctx context.Context) error {
			return tm.repo.Create(ctx, tm.db, event)
		})
	}
	return id, nil
}

// RegisterOnceEvent creates a one-shot event firing after delaySec
// seconds, or at the absolute instant executeAtMs when delaySec is zero.
// Both are rounded to whole seconds. Fails fast if neither is given.
func (tm *TimeManager) RegisterOnceEvent(ctx context.Context, name string, delaySec int64, executeAtMs int64, action Action, opts EventOptions) (string, error) {
	if err := domain.ValidateEventName(name); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	if delaySec <= 0 && executeAtMs <= 0 {
		return "", domain.ErrValidation("either a delay or an absolute execute time is required")
	}

	nowMs := tm.now()
	if delaySec > 0 {
		executeAtMs = nowMs + delaySec*1000
	}
	executeAtMs = clock.RoundMs(executeAtMs)

	id := syntheticID(name)
	if opts.Persistent {
		id = uuid.New().String()
	}

	event := &domain.TimeEvent{
		ID:          id,
		Type:        domain.EventOnce,
		Name:        name,
		ExecuteAtMs: executeAtMs,
		Status:      domain.EventActive,
		PlayerID:    opts.PlayerID,
		WorldID:     opts.WorldID,
		ActionType:  opts.ActionType,
		Metadata:    opts.Metadata,
		Persistent:  opts.Persistent,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	tm.mu.Lock()
	tm.store.addOnce(&entry{event: event, action: action})
	tm.mu.Unlock()

	if opts.Persistent {
		tm.persist(ctx, "persist.create", event.Name, func(ctx context.Context) error {
			return tm.repo.Create(ctx, tm.db, event)
		})
	}
	return id, nil
}

// RegisterCronEvent creates a grid-aligned event: firings land on
// startAtMs + k*intervalSec regardless of pauses or restarts. The first
// firing is the smallest grid instant strictly after now.
func (tm *TimeManager) RegisterCronEvent(ctx context.Context, name string, startAtMs, intervalSec int64, action Action, opts EventOptions) (string, error) {
	if err := domain.ValidateEventName(name); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	if intervalSec <= 0 {
		return "", domain.ErrValidation(fmt.Sprintf("interval must be positive, got %d", intervalSec))
	}

	startAtMs = clock.RoundMs(startAtMs)
	nowMs := tm.now()

	id := name
	if !opts.Persistent {
		id = syntheticID(name)
	}

	if opts.Persistent && tm.adoptCron(ctx, id, startAtMs, intervalSec, action) {
		return id, nil
	}

	event := &domain.TimeEvent{
		ID:          id,
		Type:        domain.EventCron,
		Name:        name,
		ExecuteAtMs: nextGridInstant(startAtMs, intervalSec, nowMs),
		IntervalSec: intervalSec,
		StartAtMs:   startAtMs,
		Status:      domain.EventActive,
		PlayerID:    opts.PlayerID,
		WorldID:     opts.WorldID,
		ActionType:  opts.ActionType,
		Metadata:    opts.Metadata,
		Persistent:  opts.Persistent,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	tm.mu.Lock()
	tm.store.addOnce(&entry{event: event, action: action})
	tm.mu.Unlock()

	if opts.Persistent {
		tm.persist(ctx, "persist.create", event.Name, func(ctx context.Context) error {
			return tm.repo.Create(ctx, tm.db, event)
		})
	}
	return id, nil
}

// adoptPeriodic re-binds the action of an existing periodic event instead
// of resetting its cadence. A live entry (Recover ran first) is matched
// before the durable record, so a backlog that built up while the process
// was down survives the registration in either startup order. Reports
// false when nothing matches or the interval changed; the caller then
// overwrites.
func (tm *TimeManager) adoptPeriodic(ctx context.Context, id string, intervalSec int64, action Action) bool {
	tm.mu.Lock()
	if en, ok := tm.store.periodic[id]; ok {
		adopted := en.event.IntervalSec == intervalSec
		if adopted {
			en.action = action
		}
		tm.mu.Unlock()
		return adopted
	}
	tm.mu.Unlock()

	rec, err := tm.repo.GetByID(ctx, tm.db, id)
	if err != nil {
		tm.logger.Warn("durable lookup failed during registration", "event", id, "error", err)
		return false
	}
	if rec == nil || rec.Status != domain.EventActive ||
		rec.Type != domain.EventPeriodic || rec.IntervalSec != intervalSec {
		return false
	}

	event := *rec
	if event.LastExecutionMs == 0 {
		event.LastExecutionMs = tm.now()
	}
	tm.mu.Lock()
	tm.store.addPeriodic(&entry{event: &event, action: action})
	tm.mu.Unlock()
	return true
}

// adoptCron is the cron counterpart of adoptPeriodic: an existing record
// on the same grid keeps its stored ExecuteAtMs, which may already be in
// the past and must stay that way so the missed firing replays.
func (tm *TimeManager) adoptCron(ctx context.Context, id string, startAtMs, intervalSec int64, action Action) bool {
	tm.mu.Lock()
	if en, ok := tm.store.once[id]; ok {
		adopted := en.event.Type == domain.EventCron &&
			en.event.StartAtMs == startAtMs && en.event.IntervalSec == intervalSec
		if adopted {
			en.action = action
		}
		tm.mu.Unlock()
		return adopted
	}
	tm.mu.Unlock()

	rec, err := tm.repo.GetByID(ctx, tm.db, id)
	if err != nil {
		tm.logger.Warn("durable lookup failed during registration", "event", id, "error", err)
		return false
	}
	if rec == nil || rec.Status != domain.EventActive || rec.Type != domain.EventCron ||
		rec.StartAtMs != startAtMs || rec.IntervalSec != intervalSec {
		return false
	}

	event := *rec
	event.ExecuteAtMs = clock.RoundMs(event.ExecuteAtMs)
	tm.mu.Lock()
	tm.store.addOnce(&entry{event: &event, action: action})
	tm.mu.Unlock()
	return true
}

// CancelEvent removes an event from whichever store holds it. Idempotent:
// reports whether something was actually cancelled. If the tick loop has
// already pulled the event for firing in the current tick, the fire
// proceeds and cancellation affects future ticks only.
func (tm *TimeManager) CancelEvent(ctx context.Context, id string) bool {
	tm.mu.Lock()
	en, ok := tm.store.removeOnce(id)
	if !ok {
		en, ok = tm.store.removePeriodic(id)
	}
	tm.mu.Unlock()
	if !ok {
		return false
	}

	en.event.Status = domain.EventCancelled
	if en.event.Persistent {
		tm.persist(ctx, "persist.status", en.event.Name, func(ctx context.Context) error {
			return tm.repo.UpdateStatus(ctx, tm.db, id, domain.EventCancelled, 0)
		})
	}
	return true
}

// PauseEvent suspends an active one-shot event with a future execute
// time. The event leaves its bucket so the tick loop cannot fire it, and
// the remaining time until ExecuteAtMs is snapshotted for resume. Refuses
// events that are already due: they belong to the tick loop.
func (tm *TimeManager) PauseEvent(ctx context.Context, id string) bool {
	nowMs := tm.now()

	tm.mu.Lock()
	en, ok := tm.store.once[id]
	if !ok || en.event.Status != domain.EventActive {
		tm.mu.Unlock()
		return false
	}
	remaining := en.event.ExecuteAtMs - nowMs
	if remaining <= 0 {
		tm.mu.Unlock()
		return false
	}
	tm.store.removeFromBucket(id, en.event.ExecuteAtMs)
	en.event.Status = domain.EventPaused
	en.event.PausedAtMs = nowMs
	en.event.RemainingMs = remaining
	tm.mu.Unlock()

	if en.event.Persistent {
		tm.persist(ctx, "persist.pause", en.event.Name, func(ctx context.Context) error {
			return tm.repo.PauseEvent(ctx, tm.db, id, nowMs, remaining)
		})
	}
	return true
}

// ResumeEvent reactivates a paused event. Plain delayed events fire
// RemainingMs after the resume call; cron events snap back onto their
// original grid instead, preventing resume-induced drift.
func (tm *TimeManager) ResumeEvent(ctx context.Context, id string) bool {
	nowMs := tm.now()

	tm.mu.Lock()
	en, ok := tm.store.once[id]
	if !ok || en.event.Status != domain.EventPaused {
		tm.mu.Unlock()
		return false
	}

	var executeAt int64
	if en.event.Type == domain.EventCron {
		executeAt = nextGridInstant(en.event.StartAtMs, en.event.IntervalSec, nowMs)
	} else {
		executeAt = clock.RoundMs(nowMs + en.event.RemainingMs)
	}
	en.event.Status = domain.EventActive
	en.event.ExecuteAtMs = executeAt
	en.event.PausedAtMs = 0
	en.event.RemainingMs = 0
	tm.store.addToBucket(id, executeAt)
	tm.mu.Unlock()

	if en.event.Persistent {
		tm.persist(ctx, "persist.resume", en.event.Name, func(ctx context.Context) error {
			return tm.repo.ResumeEvent(ctx, tm.db, id, executeAt)
		})
	}
	return true
}

// RemainingTime reports the milliseconds left before a one-shot event
// fires: the pause snapshot for paused events, the live countdown for
// active ones. Consumers build their own rebalancing formulas on top of
// this value. Returns false for unknown or periodic ids.
func (tm *TimeManager) RemainingTime(id string) (int64, bool) {
	nowMs := tm.now()
	tm.mu.Lock()
	defer tm.mu.Unlock()

	en, ok := tm.store.once[id]
	if !ok {
		return 0, false
	}
	if en.event.Status == domain.EventPaused {
		return en.event.RemainingMs, true
	}
	return en.event.ExecuteAtMs - nowMs, true
}

// UpdateEventTime re-homes an active one-shot event to fire newDelaySec
// seconds from now. Used by admin and test tooling.
func (tm *TimeManager) UpdateEventTime(ctx context.Context, id string, newDelaySec int64) bool {
	if newDelaySec <= 0 {
		return false
	}
	executeAt := tm.now() + newDelaySec*1000

	tm.mu.Lock()
	en, ok := tm.store.once[id]
	if !ok || en.event.Status != domain.EventActive {
		tm.mu.Unlock()
		return false
	}
	tm.store.reschedule(en, executeAt)
	tm.mu.Unlock()

	if en.event.Persistent {
		tm.persist(ctx, "persist.reschedule", en.event.Name, func(ctx context.Context) error {
			return tm.repo.UpdateExecuteTime(ctx, tm.db, id, executeAt)
		})
	}
	return true
}

// Event returns a copy of a live event, one-shot or periodic. Consumers
// use it to read back the metadata they attached at register time.
func (tm *TimeManager) Event(id string) (domain.TimeEvent, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if en, ok := tm.store.once[id]; ok {
		return *en.event, true
	}
	if en, ok := tm.store.periodic[id]; ok {
		return *en.event, true
	}
	return domain.TimeEvent{}, false
}

// Stats returns counts of live events and buckets.
func (tm *TimeManager) Stats() domain.TimeManagerStats {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.store.stats()
}

// PlayerEvents merges the in-memory and durable views of a player's
// events, newest first. In-memory entries win on id collisions since they
// are authoritative while the process runs.
func (tm *TimeManager) PlayerEvents(ctx context.Context, playerID string) ([]domain.TimeEvent, error) {
	tm.mu.Lock()
	merged := make(map[string]domain.TimeEvent)
	for _, en := range tm.store.once {
		if en.event.PlayerID == playerID {
			merged[en.event.ID] = *en.event
		}
	}
	for _, en := range tm.store.periodic {
		if en.event.PlayerID == playerID {
			merged[en.event.ID] = *en.event
		}
	}
	tm.mu.Unlock()

	durable, err := tm.repo.ListByPlayer(ctx, tm.db, playerID)
	if err != nil {
		return nil, fmt.Errorf("list durable events: %w", err)
	}
	for _, e := range durable {
		if _, ok := merged[e.ID]; !ok {
			merged[e.ID] = e
		}
	}

	events := make([]domain.TimeEvent, 0, len(merged))
	for _, e := range merged {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// persist runs a gateway write behind the circuit breaker. Failures are
// logged and swallowed: in-memory state is never rolled back.
func (tm *TimeManager) persist(ctx context.Context, op, eventName string, fn func(ctx context.Context) error) {
	if res := tm.breaker.Check(op); !res.Allowed {
		tm.logger.Warn("persistence skipped", "op", op, "event", eventName, "reason", res.Reason)
		return
	}
	if err := fn(ctx); err != nil {
		tm.breaker.RecordFailure(op)
		tm.logger.Error("persistence write failed", "op", op, "event", eventName, "error", err)
		return
	}
	tm.breaker.RecordSuccess(op)
}

// nextGridInstant returns the smallest startAt + k*interval strictly
// greater than nowMs.
func nextGridInstant(startAtMs, intervalSec, nowMs int64) int64 {
	intervalMs := intervalSec * 1000
	if nowMs < startAtMs {
		return startAtMs
	}
	k := (nowMs-startAtMs)/intervalMs + 1
	return startAtMs + k*intervalMs
}

func syntheticID(name string) string {
	return fmt.Sprintf("%s-%d-%04d", name, time.Now().UnixMilli(), rand.Intn(10000))
}
