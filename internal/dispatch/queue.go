// Package dispatch serializes inbound chat commands. Each chat gets a FIFO
// queue so its commands execute one at a time in arrival order, while a
// bounded lane caps how many commands run at once across all chats. A
// duplicate-delivery cache in front of the queues absorbs redelivered
// updates from the chat platforms.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// DropPolicy determines which command to drop when a chat queue is full.
type DropPolicy string

const (
	DropOld DropPolicy = "old" // drop oldest queued command
	DropNew DropPolicy = "new" // reject incoming command
)

// QueueConfig configures per-chat command queuing.
type QueueConfig struct {
	Cap  int        `json:"cap"`
	Drop DropPolicy `json:"drop"`
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Cap:  8,
		Drop: DropOld,
	}
}

// Task is one unit of chat work. It sends its own replies; the dispatcher
// only reports queueing failures through the outcome channel.
type Task func(ctx context.Context)

type pendingTask struct {
	fn   Task
	done chan error
}

// ChatQueue serializes tasks for a single chat. Only one task executes at a
// time; additional commands wait their turn.
type ChatQueue struct {
	key   string
	cfg   QueueConfig
	lanes *LaneManager
	lane  string

	mu        sync.Mutex
	queue     []*pendingTask
	active    bool
	parentCtx context.Context // from the first Enqueue, used for follow-on tasks
}

// NewChatQueue creates a queue for a specific chat key.
func NewChatQueue(key, lane string, cfg QueueConfig, lanes *LaneManager) *ChatQueue {
	return &ChatQueue{
		key:   key,
		cfg:   cfg,
		lanes: lanes,
		lane:  lane,
	}
}

// Enqueue adds a task to the chat queue. If no task is active it starts
// immediately. The returned channel receives nil when the task has run, or
// the reason it never will.
func (cq *ChatQueue) Enqueue(ctx context.Context, fn Task) <-chan error {
	pending := &pendingTask{fn: fn, done: make(chan error, 1)}

	cq.mu.Lock()
	defer cq.mu.Unlock()

	if cq.parentCtx == nil {
		cq.parentCtx = ctx
	}

	if cq.cfg.Cap > 0 && len(cq.queue) >= cq.cfg.Cap {
		cq.applyDropPolicy(pending)
	} else {
		cq.queue = append(cq.queue, pending)
	}

	if !cq.active {
		cq.startNext(ctx)
	}

	return pending.done
}

// startNext picks the first queued task and runs it in the lane.
// Must be called with cq.mu held.
func (cq *ChatQueue) startNext(ctx context.Context) {
	if len(cq.queue) == 0 {
		return
	}

	pending := cq.queue[0]
	cq.queue = cq.queue[1:]
	cq.active = true

	lane := cq.lanes.Get(cq.lane)
	if lane == nil {
		// No lane available, run directly
		go cq.execute(ctx, pending)
		return
	}

	err := lane.Submit(ctx, func() {
		cq.execute(ctx, pending)
	})
	if err != nil {
		pending.done <- err
		close(pending.done)
		// caller already holds cq.mu
		cq.active = false
	}
}

// execute runs the task and then starts the next queued command.
func (cq *ChatQueue) execute(ctx context.Context, pending *pendingTask) {
	pending.fn(ctx)
	pending.done <- nil
	close(pending.done)

	cq.mu.Lock()
	cq.active = false
	if len(cq.queue) > 0 {
		cq.startNext(cq.parentCtx)
	}
	cq.mu.Unlock()
}

// applyDropPolicy handles a full queue.
// Must be called with cq.mu held.
func (cq *ChatQueue) applyDropPolicy(incoming *pendingTask) {
	switch cq.cfg.Drop {
	case DropNew:
		incoming.done <- ErrQueueFull
		close(incoming.done)

	default: // DropOld
		if len(cq.queue) > 0 {
			old := cq.queue[0]
			old.done <- ErrQueueDropped
			close(old.done)
			cq.queue = cq.queue[1:]
		}
		cq.queue = append(cq.queue, incoming)
	}
}

// Len returns the number of pending commands.
func (cq *ChatQueue) Len() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.queue)
}

// Dispatcher is the top-level coordinator that manages lanes and chat queues.
type Dispatcher struct {
	lanes *LaneManager
	cfg   QueueConfig

	mu    sync.RWMutex
	chats map[string]*ChatQueue
}

// NewDispatcher creates a dispatcher with the given lane and queue config.
func NewDispatcher(laneConfigs []LaneConfig, cfg QueueConfig) *Dispatcher {
	return &Dispatcher{
		lanes: NewLaneManager(laneConfigs),
		cfg:   cfg,
		chats: make(map[string]*ChatQueue),
	}
}

// Submit routes a task to the chat's queue. Tasks for one chat run in order;
// tasks for different chats run in parallel up to the lane's concurrency.
func (d *Dispatcher) Submit(ctx context.Context, chat string, fn Task) <-chan error {
	return d.getOrCreateChat(chat).Enqueue(ctx, fn)
}

func (d *Dispatcher) getOrCreateChat(chat string) *ChatQueue {
	d.mu.RLock()
	cq, ok := d.chats[chat]
	d.mu.RUnlock()
	if ok {
		return cq
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cq, ok := d.chats[chat]; ok {
		return cq
	}

	cq = NewChatQueue(chat, "main", d.cfg, d.lanes)
	d.chats[chat] = cq

	slog.Debug("chat queue created", "chat", chat)
	return cq
}

// Stop shuts down all lanes.
func (d *Dispatcher) Stop() {
	d.lanes.StopAll()
}

// LaneStats returns utilization metrics for all lanes.
func (d *Dispatcher) LaneStats() []LaneStats {
	return d.lanes.AllStats()
}
