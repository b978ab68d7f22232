package service

import (
	"context"
	"sync"

	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/repository/memory"
	"github.com/fixmyward/ward-service/internal/wardroom"
	"github.com/fixmyward/ward-service/internal/worker"
)

// racingIssues lets a concurrent writer slip in right before a status write.
type racingIssues struct {
	*memory.Issues
	race func(ctx context.Context, id string)
}

func (r *racingIssues) UpdateStatus(ctx context.Context, id string, from, to domain.IssueStatus, assignedTo *string) (*domain.Issue, error) {
	if r.race != nil {
		r.race(ctx, id)
	}
	return r.Issues.UpdateStatus(ctx, id, from, to, assignedTo)
}

// inlineJobs runs jobs on the caller's goroutine.
type inlineJobs struct {
	errs []error
}

func (r *inlineJobs) Submit(job worker.Job) error {
	if err := job.Run(context.Background()); err != nil {
		r.errs = append(r.errs, err)
	}
	return nil
}

type recordingConn struct {
	id     string
	mu     sync.Mutex
	frames []wardroom.OutboundEvent
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Enqueue(ev wardroom.OutboundEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, ev)
	return true
}

func (c *recordingConn) received() []wardroom.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wardroom.OutboundEvent{}, c.frames...)
}
