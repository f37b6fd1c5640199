// Copyright (c) 2026 Nexio. All rights reserved.
// Author: platform@nexio.dev

package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexioerp/nexio/internal/iam/authz"
	"github.com/nexioerp/nexio/internal/obs"
	"github.com/nexioerp/nexio/internal/platform/clock"
	"github.com/nexioerp/nexio/internal/platform/constants"
)

// Sink buffers events and hands them to a single background writer.
type Sink struct {
	store   Store
	clk     clock.Clock
	log     *slog.Logger
	queue   chan Event
	dropped atomic.Uint64

	stopOnce sync.Once
	done     chan struct{}
}

// NewSink creates a sink with the standard queue capacity. Run must be
// started for events to reach the store.
func NewSink(store Store, clk clock.Clock, log *slog.Logger) *Sink {
	return &Sink{
		store: store,
		clk:   clk,
		log:   log,
		queue: make(chan Event, constants.AuditQueueCapacity),
		done:  make(chan struct{}),
	}
}

/*
Record enqueues an event without ever blocking the caller.

When the queue is full, the oldest queued event is evicted to make
room and the drop counter advances. The caller's event is therefore
admitted in all but pathological races.

Parameters:
  - e: the event. CreatedAt is stamped here when zero.
*/
func (s *Sink) Record(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clk.Now()
	}

	for {
		select {
		case s.queue <- e:
			return
		default:
		}

		// Queue full: evict the oldest and retry once more. Another
		// producer may win the freed slot; loop until seated.
		select {
		case <-s.queue:
			s.dropped.Add(1)
			obs.AuditQueueDropped.Inc()
		default:
		}
	}
}

// Dropped returns the number of events evicted since startup.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

/*
Run is the single background writer. It batches queued events up to
the batch size or the flush interval, whichever fills first, and keeps
draining after ctx is cancelled until the queue is empty.

Parameters:
  - ctx: lifecycle context; cancellation begins the final drain.
*/
func (s *Sink) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(constants.AuditFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, constants.AuditBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		// The store gets a fresh context: request contexts that fed
		// the queue are long gone by now.
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.InsertBatch(writeCtx, batch); err != nil {
			s.log.Error("audit batch write failed", "events", len(batch), "error", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= constants.AuditBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// Final drain: take whatever is queued, then stop.
			for {
				select {
				case e := <-s.queue:
					batch = append(batch, e)
					if len(batch) >= constants.AuditBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Wait blocks until the background writer has fully drained after its
// context was cancelled.
func (s *Sink) Wait() {
	<-s.done
}

// RecordGuestAccess adapts the sink to the authorization engine's
// recorder: every guest-ownership attempt becomes an audit event.
func (s *Sink) RecordGuestAccess(_ context.Context, access authz.GuestAccess) {
	outcome := OutcomeDenied
	if access.Allowed {
		outcome = OutcomeAllowed
	}
	severity := SeverityInfo
	if !access.Allowed {
		severity = SeverityWarning
	}
	s.Record(Event{
		Category:  "authz",
		Severity:  severity,
		Action:    "guest_access",
		Outcome:   outcome,
		ErrorCode: reasonCode(access),
		ClientIP:  access.ClientIP,
		Metadata:  map[string]any{"email": access.Email},
		CreatedAt: access.Timestamp,
	})
}

func reasonCode(access authz.GuestAccess) string {
	if access.Allowed {
		return ""
	}
	return access.Reason
}
