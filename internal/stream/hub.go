package stream

import (
	"sync"
	"time"

	"task-planner/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Snapshot is one full-state delivery: the complete ordered task list
// for a user, never a delta. Receipt of the first snapshot is what
// clears a consumer's loading state.
type Snapshot struct {
	Tasks []models.Task `json:"tasks"`
	At    time.Time     `json:"at"`
}

// Loader fetches the current ordered task list for a user. The hub
// calls it on subscribe and after every notified write.
type Loader func(userID uuid.UUID) ([]models.Task, error)

// Subscription is a single-owner handle on a user's snapshot feed.
// Cancel is idempotent; after Cancel the Updates channel is closed.
type Subscription struct {
	userID uuid.UUID
	ch     chan Snapshot
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans task snapshots out to per-user subscriptions. Deliveries
// coalesce under backpressure: a slow consumer skips straight to the
// latest snapshot, which is safe because every frame carries the full
// state.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	loader Loader
	buffer int
	logger *zap.Logger
}

func NewHub(loader Loader, buffer int, logger *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		loader: loader,
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a listener for the user's snapshots and delivers
// the initial snapshot before returning, so consumers leave the
// loading state as soon as they start reading. Registration happens
// before the initial load: a write landing while the load runs reaches
// the subscription through Notify instead of falling into a gap.
func (h *Hub) Subscribe(userID uuid.UUID) (*Subscription, error) {
	sub := &Subscription{
		userID: userID,
		ch:     make(chan Snapshot, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	tasks, err := h.loader(userID)
	if err != nil {
		sub.Cancel()
		return nil, err
	}

	// Queue the initial snapshot unless a concurrent Notify already
	// delivered one. Holding the lock keeps remove from closing the
	// channel mid-send; the channel is empty and buffered, so the send
	// cannot block.
	h.mu.Lock()
	if _, open := h.subs[userID][sub]; open && len(sub.ch) == 0 {
		sub.ch <- Snapshot{Tasks: tasks, At: time.Now()}
	}
	h.mu.Unlock()

	return sub, nil
}

// Notify reloads the user's snapshot and broadcasts it to every open
// subscription for that user. Called after each successful write.
func (h *Hub) Notify(userID uuid.UUID) {
	h.mu.RLock()
	active := len(h.subs[userID])
	h.mu.RUnlock()
	if active == 0 {
		return
	}

	tasks, err := h.loader(userID)
	if err != nil {
		h.logger.Warn("snapshot reload failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	snap := Snapshot{Tasks: tasks, At: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		deliver(sub.ch, snap)
	}
}

// SubscriberCount reports the number of open subscriptions for a user.
func (h *Hub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close cancels every open subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, subs := range h.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Cancel()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.userID]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subs, sub.userID)
			}
			close(sub.ch)
		}
	}
}

// deliver pushes a snapshot without blocking: when the buffer is full
// the oldest pending snapshot is dropped in favor of the new one.
func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
