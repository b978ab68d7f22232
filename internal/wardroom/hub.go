package wardroom

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Connection is a live subscriber. Enqueue must not block; it reports
// false when the frame could not be buffered.
type Connection interface {
	ID() string
	Enqueue(OutboundEvent) bool
}

// Recorder receives per-broadcast delivery counts.
type Recorder interface {
	RecordBroadcast(delivered, dropped int)
}

type room struct {
	members map[string]Connection
	seq     uint64
}

// Hub partitions live connections into ward rooms and fans ward events out to them.
// One mutex guards both the room table and the reverse membership index, and
// Broadcast enqueues while holding it, so each member sees a room's events in call order.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{}

	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// NewHub creates an empty hub. recorder may be nil.
func NewHub(logger *zap.Logger, recorder Recorder) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger,
		recorder:    recorder,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Join adds conn to ward's room, creating the room on demand. Joining twice is a no-op.
func (h *Hub) Join(conn Connection, ward string) {
	h.join(conn, ward, false)
}

// Leave removes conn from ward's room. Leaving a room conn is not in is a no-op.
func (h *Hub) Leave(conn Connection, ward string) {
	h.leave(conn, ward, false)
}

// ChangeWard moves conn from oldWard to newWard in one critical section, so no
// broadcast can observe the connection in neither room or still in oldWard afterwards.
func (h *Hub) ChangeWard(conn Connection, oldWard, newWard string) {
	h.changeWard(conn, oldWard, newWard, false)
}

// With ack set, the ward-joined and ward-left frames are enqueued under the
// same lock as the membership change, ahead of any broadcast to the new room.
func (h *Hub) join(conn Connection, ward string, ack bool) {
	ward = normalizeWard(ward)
	if conn == nil || ward == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(conn, ward)
	if ack {
		conn.Enqueue(OutboundEvent{Event: FrameWardJoined, Ward: ward, Timestamp: h.now()})
	}
}

func (h *Hub) leave(conn Connection, ward string, ack bool) {
	ward = normalizeWard(ward)
	if conn == nil || ward == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID(), ward)
	if ack {
		conn.Enqueue(OutboundEvent{Event: FrameWardLeft, Ward: ward, Timestamp: h.now()})
	}
}

func (h *Hub) changeWard(conn Connection, oldWard, newWard string, ack bool) {
	if conn == nil {
		return
	}
	oldWard, newWard = normalizeWard(oldWard), normalizeWard(newWard)
	if oldWard == newWard {
		h.join(conn, newWard, ack)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	if oldWard != "" {
		h.leaveLocked(conn.ID(), oldWard)
		if ack {
			conn.Enqueue(OutboundEvent{Event: FrameWardLeft, Ward: oldWard, Timestamp: now})
		}
	}
	if newWard != "" {
		h.joinLocked(conn, newWard)
		if ack {
			conn.Enqueue(OutboundEvent{Event: FrameWardJoined, Ward: newWard, Timestamp: now})
		}
	}
}

// Disconnect removes conn from every room it belongs to.
func (h *Hub) Disconnect(conn Connection) {
	if conn == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	id := conn.ID()
	for ward := range h.memberships[id] {
		h.leaveLocked(id, ward)
	}
	delete(h.memberships, id)
	h.logger.Debug("connection removed from all wards", zap.String("conn_id", id))
}

// Broadcast delivers evt to every connection currently in its ward and returns how
// many accepted it. It never fails: invalid events are logged and dropped, and members
// whose buffers are full miss the event.
func (h *Hub) Broadcast(evt WardEvent) int {
	if evt == nil {
		return 0
	}
	if err := evt.validate(); err != nil {
		h.logger.Warn("rejecting ward event", zap.Error(err))
		return 0
	}
	ward := evt.room()

	h.mu.Lock()
	r, ok := h.rooms[ward]
	if !ok || len(r.members) == 0 {
		h.mu.Unlock()
		h.record(0, 0)
		return 0
	}

	r.seq++
	frame := evt.frame(h.now())
	frame.Seq = r.seq

	delivered, dropped := 0, 0
	for id, member := range r.members {
		if member.Enqueue(frame) {
			delivered++
			continue
		}
		dropped++
		h.logger.Warn("dropping ward event for slow connection",
			zap.String("ward", ward),
			zap.String("conn_id", id),
			zap.String("event", frame.Event),
			zap.Uint64("seq", frame.Seq))
	}
	h.mu.Unlock()

	h.record(delivered, dropped)
	return delivered
}

// Members returns the number of connections in ward's room.
func (h *Hub) Members(ward string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[normalizeWard(ward)]; ok {
		return len(r.members)
	}
	return 0
}

// Rooms lists wards that currently have members, sorted.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	wards := make([]string, 0, len(h.rooms))
	for ward := range h.rooms {
		wards = append(wards, ward)
	}
	sort.Strings(wards)
	return wards
}

// WardsOf lists the wards conn is joined to, sorted.
func (h *Hub) WardsOf(conn Connection) []string {
	if conn == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.memberships[conn.ID()]
	wards := make([]string, 0, len(set))
	for ward := range set {
		wards = append(wards, ward)
	}
	sort.Strings(wards)
	return wards
}

func (h *Hub) joinLocked(conn Connection, ward string) {
	id := conn.ID()
	r, ok := h.rooms[ward]
	if !ok {
		r = &room{members: make(map[string]Connection)}
		h.rooms[ward] = r
	}
	if _, already := r.members[id]; already {
		return
	}
	r.members[id] = conn

	set, ok := h.memberships[id]
	if !ok {
		set = make(map[string]struct{})
		h.memberships[id] = set
	}
	set[ward] = struct{}{}
	h.logger.Debug("joined ward", zap.String("conn_id", id), zap.String("ward", ward), zap.Int("members", len(r.members)))
}

func (h *Hub) leaveLocked(id, ward string) {
	r, ok := h.rooms[ward]
	if !ok {
		return
	}
	if _, member := r.members[id]; !member {
		return
	}
	delete(r.members, id)
	if len(r.members) == 0 {
		delete(h.rooms, ward)
	}

	if set, ok := h.memberships[id]; ok {
		delete(set, ward)
		if len(set) == 0 {
			delete(h.memberships, id)
		}
	}
	h.logger.Debug("left ward", zap.String("conn_id", id), zap.String("ward", ward))
}

func (h *Hub) record(delivered, dropped int) {
	if h.recorder != nil {
		h.recorder.RecordBroadcast(delivered, dropped)
	}
}
