package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/repository"
)

// fakeGateway is an in-memory TimeEventRepository. It ignores the DBTX
// argument and keeps records by id, which is all the scheduler needs.
type fakeGateway struct {
	mu      sync.Mutex
	records map[string]domain.TimeEvent
	fail    bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{records: make(map[string]domain.TimeEvent)}
}

var errGatewayDown = io.ErrUnexpectedEOF

func (g *fakeGateway) Create(_ context.Context, _ repository.DBTX, e *domain.TimeEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	g.records[e.ID] = *e
	return nil
}

func (g *fakeGateway) GetActive(_ context.Context, _ repository.DBTX) ([]domain.TimeEvent, error) {
	return g.byStatus(domain.EventActive), nil
}

func (g *fakeGateway) GetPaused(_ context.Context, _ repository.DBTX) ([]domain.TimeEvent, error) {
	return g.byStatus(domain.EventPaused), nil
}

func (g *fakeGateway) byStatus(status domain.TimeEventStatus) []domain.TimeEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.TimeEvent
	for _, e := range g.records {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func (g *fakeGateway) GetByID(_ context.Context, _ repository.DBTX, id string) (*domain.TimeEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.records[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (g *fakeGateway) UpdateStatus(_ context.Context, _ repository.DBTX, id string, status domain.TimeEventStatus, lastExecutionMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	e, ok := g.records[id]
	if !ok {
		return nil
	}
	e.Status = status
	if lastExecutionMs > 0 {
		e.LastExecutionMs = lastExecutionMs
	}
	g.records[id] = e
	return nil
}

func (g *fakeGateway) PauseEvent(_ context.Context, _ repository.DBTX, id string, pausedAtMs, remainingMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	e, ok := g.records[id]
	if !ok {
		return nil
	}
	e.Status = domain.EventPaused
	e.PausedAtMs = pausedAtMs
	e.RemainingMs = remainingMs
	g.records[id] = e
	return nil
}

func (g *fakeGateway) ResumeEvent(_ context.Context, _ repository.DBTX, id string, executeAtMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	e, ok := g.records[id]
	if !ok {
		return nil
	}
	e.Status = domain.EventActive
	e.ExecuteAtMs = executeAtMs
	e.PausedAtMs = 0
	e.RemainingMs = 0
	g.records[id] = e
	return nil
}

func (g *fakeGateway) UpdateExecuteTime(_ context.Context, _ repository.DBTX, id string, executeAtMs int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return errGatewayDown
	}
	e, ok := g.records[id]
	if !ok {
		return nil
	}
	e.ExecuteAtMs = executeAtMs
	g.records[id] = e
	return nil
}

func (g *fakeGateway) DeleteByID(_ context.Context, _ repository.DBTX, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, id)
	return nil
}

func (g *fakeGateway) CleanupOlderThan(_ context.Context, _ repository.DBTX, _ int) (int64, error) {
	return 0, nil
}

func (g *fakeGateway) ListByPlayer(_ context.Context, _ repository.DBTX, playerID string) ([]domain.TimeEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []domain.TimeEvent
	for _, e := range g.records {
		if e.PlayerID == playerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *fakeGateway) get(id string) (domain.TimeEvent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.records[id]
	return e, ok
}

func (g *fakeGateway) setFail(fail bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fail
}

// simClock is a manually advanced scheduler clock.
type simClock struct {
	mu sync.Mutex
	ms int64
}

func newSimClock(startMs int64) *simClock {
	return &simClock{ms: startMs}
}

func (c *simClock) now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *simClock) advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms += seconds * 1000
}

func newTestManager(gw *fakeGateway, clk *simClock) *TimeManager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTimeManager(nil, gw, logger, Config{Now: clk.now})
}

// tickThrough advances the simulated clock one second at a time, running
// a tick at each step, for the given number of seconds.
func tickThrough(tm *TimeManager, clk *simClock, seconds int64) {
	ctx := context.Background()
	for i := int64(0); i < seconds; i++ {
		clk.advance(1)
		tm.runTick(ctx, clk.now())
	}
}
