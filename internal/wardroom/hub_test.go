package wardroom

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id  string
	cap int

	mu     sync.Mutex
	frames []OutboundEvent
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id, cap: 1 << 20} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Enqueue(ev OutboundEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) >= f.cap {
		return false
	}
	f.frames = append(f.frames, ev)
	return true
}

func (f *fakeConn) received() []OutboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OutboundEvent(nil), f.frames...)
}

type countingRecorder struct {
	mu                 sync.Mutex
	delivered, dropped int
}

func (r *countingRecorder) RecordBroadcast(delivered, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered += delivered
	r.dropped += dropped
}

func created(ward, id string) IssueCreated {
	return IssueCreated{IssueID: id, Ward: ward, Category: "Pothole", Title: "Pothole " + id}
}

func TestJoinThenBroadcastDelivers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.Join(c, "HSR Layout")
	n := hub.Broadcast(created("HSR Layout", "i-1"))

	assert.Equal(t, 1, n)
	frames := c.received()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameNewIssue, frames[0].Event)
	assert.Equal(t, "i-1", frames[0].IssueID)
	assert.Equal(t, "Pothole i-1", frames[0].Title)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.False(t, frames[0].Timestamp.IsZero())
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.Join(c, "HSR Layout")
	hub.Broadcast(created("HSR Layout", "i-1"))
	hub.Leave(c, "HSR Layout")
	hub.Broadcast(created("HSR Layout", "i-2"))

	assert.Len(t, c.received(), 1)
	assert.Equal(t, 0, hub.Members("HSR Layout"))
	assert.Empty(t, hub.Rooms())

	// Leaving a room the connection never joined is a no-op.
	hub.Leave(c, "Indiranagar")
}

func TestChangeWardMovesSubscription(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.Join(c, "HSR Layout")
	hub.ChangeWard(c, "HSR Layout", "Indiranagar")

	assert.Equal(t, 0, hub.Broadcast(created("HSR Layout", "old")))
	assert.Equal(t, 1, hub.Broadcast(created("Indiranagar", "new")))

	frames := c.received()
	require.Len(t, frames, 1)
	assert.Equal(t, "new", frames[0].IssueID)
	assert.Equal(t, []string{"Indiranagar"}, hub.WardsOf(c))
}

func TestChangeWardFromNothingJoins(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.ChangeWard(c, "", "Koramangala")
	assert.Equal(t, 1, hub.Members("Koramangala"))

	hub.ChangeWard(c, "Koramangala", "Koramangala")
	assert.Equal(t, 1, hub.Members("Koramangala"))
}

func TestDisconnectRemovesFromEveryRoom(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")
	other := newFakeConn("c2")

	hub.Join(c, "HSR Layout")
	hub.Join(c, "Indiranagar")
	hub.Join(other, "Indiranagar")
	hub.Disconnect(c)

	hub.Broadcast(created("HSR Layout", "a"))
	hub.Broadcast(created("Indiranagar", "b"))

	assert.Empty(t, c.received())
	assert.Len(t, other.received(), 1)
	assert.Empty(t, hub.WardsOf(c))
	assert.Equal(t, []string{"Indiranagar"}, hub.Rooms())
}

func TestJoinIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.Join(c, "HSR Layout")
	hub.Join(c, " HSR Layout ")
	hub.Broadcast(created("HSR Layout", "i-1"))

	assert.Len(t, c.received(), 1)
	assert.Equal(t, 1, hub.Members("HSR Layout"))
}

func TestRoomIsolation(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	hsr := newFakeConn("hsr")
	indira := newFakeConn("indira")

	hub.Join(hsr, "HSR Layout")
	hub.Join(indira, "Indiranagar")
	hub.Broadcast(IssueStatusChanged{IssueID: "i-1", Ward: "HSR Layout", Status: "IN_PROGRESS", Message: "Work started"})

	assert.Len(t, hsr.received(), 1)
	assert.Empty(t, indira.received())
	assert.Equal(t, FrameIssueUpdated, hsr.received()[0].Event)
	assert.Equal(t, "IN_PROGRESS", hsr.received()[0].Status)
}

func TestPerRoomOrdering(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")
	hub.Join(c, "HSR Layout")

	for i := 0; i < 50; i++ {
		hub.Broadcast(created("HSR Layout", fmt.Sprintf("i-%d", i)))
	}

	frames := c.received()
	require.Len(t, frames, 50)
	for i, f := range frames {
		assert.Equal(t, fmt.Sprintf("i-%d", i), f.IssueID)
		assert.Equal(t, uint64(i+1), f.Seq)
	}
}

func TestInvalidEventsAreDropped(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")
	hub.Join(c, "HSR Layout")

	assert.Equal(t, 0, hub.Broadcast(IssueCreated{Ward: "HSR Layout"}))
	assert.Equal(t, 0, hub.Broadcast(IssueStatusChanged{IssueID: "i-1", Ward: "  "}))
	assert.Equal(t, 0, hub.Broadcast(IssueStatusChanged{IssueID: "i-1", Ward: "HSR Layout"}))
	assert.Equal(t, 0, hub.Broadcast(nil))
	assert.Empty(t, c.received())

	hub.Join(c, "")
	assert.Equal(t, []string{"HSR Layout"}, hub.Rooms())
}

func TestSlowConnectionDoesNotBlockOthers(t *testing.T) {
	rec := &countingRecorder{}
	hub := NewHub(zap.NewNop(), rec)
	slow := &fakeConn{id: "slow", cap: 1}
	fast := newFakeConn("fast")

	hub.Join(slow, "HSR Layout")
	hub.Join(fast, "HSR Layout")
	hub.Broadcast(created("HSR Layout", "a"))
	n := hub.Broadcast(created("HSR Layout", "b"))

	assert.Equal(t, 1, n)
	assert.Len(t, slow.received(), 1)
	assert.Len(t, fast.received(), 2)
	assert.Equal(t, 3, rec.delivered)
	assert.Equal(t, 1, rec.dropped)
}

func TestBroadcastToEmptyWard(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	assert.Equal(t, 0, hub.Broadcast(created("Nowhere", "i-1")))
}

func TestConcurrentMembershipAndBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	wards := []string{"HSR Layout", "Indiranagar", "Koramangala"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			for j := 0; j < 50; j++ {
				hub.Join(c, wards[j%3])
				hub.ChangeWard(c, wards[j%3], wards[(j+1)%3])
				hub.Broadcast(created(wards[j%3], "x"))
			}
			hub.Disconnect(c)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, hub.Rooms())
}

func TestJoinAckPrecedesRoomEvents(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	hub.Join(newFakeConn("anchor"), "HSR Layout")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(created("HSR Layout", fmt.Sprintf("i-%d", i)))
			}
		}
	}()

	for i := 0; i < 50; i++ {
		c := newFakeConn(fmt.Sprintf("c%d", i))
		hub.join(c, "HSR Layout", true)
		frames := c.received()
		require.NotEmpty(t, frames)
		assert.Equal(t, FrameWardJoined, frames[0].Event)
	}
	close(stop)
	wg.Wait()
}

func TestChangeWardAcksInOrder(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := newFakeConn("c1")

	hub.changeWard(c, "", "HSR Layout", true)
	hub.changeWard(c, "HSR Layout", "Indiranagar", true)
	hub.Broadcast(created("Indiranagar", "i-1"))

	frames := c.received()
	require.Len(t, frames, 4)
	assert.Equal(t, []string{FrameWardJoined, FrameWardLeft, FrameWardJoined, FrameNewIssue},
		[]string{frames[0].Event, frames[1].Event, frames[2].Event, frames[3].Event})
	assert.Equal(t, "HSR Layout", frames[1].Ward)
	assert.Equal(t, "Indiranagar", frames[2].Ward)
}

func TestNilConnectionIsIgnored(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	assert.NotPanics(t, func() {
		hub.Join(nil, "HSR Layout")
		hub.Leave(nil, "HSR Layout")
		hub.ChangeWard(nil, "HSR Layout", "Indiranagar")
		hub.Disconnect(nil)
		assert.Empty(t, hub.WardsOf(nil))
	})
	assert.Empty(t, hub.Rooms())
}
