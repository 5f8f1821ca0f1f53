package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// laneBacklog is the task buffer per lane. Submits block once it fills,
// which pushes back on the channel poll loops instead of growing unbounded.
const laneBacklog = 64

// LaneConfig describes one named worker pool.
type LaneConfig struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
}

// DefaultLanes returns the standard lane set: a single shared pool for
// chat commands.
func DefaultLanes() []LaneConfig {
	return []LaneConfig{
		{Name: "main", Concurrency: 8},
	}
}

// LaneStats is a utilization snapshot of one lane.
type LaneStats struct {
	Name        string `json:"name"`
	Concurrency int    `json:"concurrency"`
	Active      int    `json:"active"`
	Queued      int    `json:"queued"`
}

// Lane is a bounded worker pool. Tasks submitted to a lane run with at most
// Concurrency of them executing at once; the rest wait in a buffer.
type Lane struct {
	name        string
	concurrency int
	tasks       chan func()
	active      atomic.Int32
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewLane creates a lane and starts its workers.
func NewLane(name string, concurrency int) *Lane {
	if concurrency <= 0 {
		concurrency = 1
	}
	l := &Lane{
		name:        name,
		concurrency: concurrency,
		tasks:       make(chan func(), laneBacklog),
		stopCh:      make(chan struct{}),
	}
	for i := 0; i < concurrency; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

func (l *Lane) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case fn := <-l.tasks:
			l.active.Add(1)
			fn()
			l.active.Add(-1)
		}
	}
}

// Submit queues fn for execution. Blocks while the lane buffer is full.
func (l *Lane) Submit(ctx context.Context, fn func()) error {
	select {
	case <-l.stopCh:
		return ErrLaneStopped
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-l.stopCh:
		return ErrLaneStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop halts the workers. Buffered tasks that have not started are discarded.
func (l *Lane) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
}

// Stats returns the lane's current utilization.
func (l *Lane) Stats() LaneStats {
	return LaneStats{
		Name:        l.name,
		Concurrency: l.concurrency,
		Active:      int(l.active.Load()),
		Queued:      len(l.tasks),
	}
}

// LaneManager holds the named lanes and resolves lookups.
type LaneManager struct {
	mu    sync.RWMutex
	lanes map[string]*Lane
}

// NewLaneManager creates the configured lanes.
func NewLaneManager(configs []LaneConfig) *LaneManager {
	if len(configs) == 0 {
		configs = DefaultLanes()
	}
	m := &LaneManager{lanes: make(map[string]*Lane, len(configs))}
	for _, cfg := range configs {
		m.lanes[cfg.Name] = NewLane(cfg.Name, cfg.Concurrency)
	}
	return m
}

// Get returns the named lane, falling back to "main" for unknown names.
func (m *LaneManager) Get(name string) *Lane {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.lanes[name]; ok {
		return l
	}
	return m.lanes["main"]
}

// GetOrCreate returns the named lane, creating it with the given concurrency
// if absent. An existing lane keeps its original concurrency.
func (m *LaneManager) GetOrCreate(name string, concurrency int) *Lane {
	m.mu.RLock()
	l, ok := m.lanes[name]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.lanes[name]; ok {
		return l
	}
	l = NewLane(name, concurrency)
	m.lanes[name] = l
	return l
}

// StopAll stops every lane.
func (m *LaneManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lanes {
		l.Stop()
	}
}

// AllStats returns a snapshot of every lane.
func (m *LaneManager) AllStats() []LaneStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make([]LaneStats, 0, len(m.lanes))
	for _, l := range m.lanes {
		stats = append(stats, l.Stats())
	}
	return stats
}
