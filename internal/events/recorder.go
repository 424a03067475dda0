package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/pkg/types"
)

// Recorder writes engine events straight into the store. It is the
// single-node path used when no NATS URL is configured.
type Recorder struct {
	store store.Store
	queue chan *types.DeploymentEvent
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewRecorder starts a recorder backed by the given store.
func NewRecorder(st store.Store) *Recorder {
	r := &Recorder{
		store: st,
		queue: make(chan *types.DeploymentEvent, 256),
		stop:  make(chan struct{}),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Publish enqueues an event for recording without blocking the caller.
func (r *Recorder) Publish(ev *types.DeploymentEvent) {
	select {
	case r.queue <- ev:
	default:
		log.Printf("event_recorder: queue full, dropping %s event for thread %s", ev.Type, ev.ThreadID)
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.record(ev)
		case <-r.stop:
			// Final flush
			for {
				select {
				case ev := <-r.queue:
					r.record(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(ev *types.DeploymentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.RecordEvent(ctx, ev); err != nil {
		log.Printf("event_recorder: failed to record %s event for thread %s: %v", ev.Type, ev.ThreadID, err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type).Inc()
}

// Close flushes queued events and stops the recorder. The store is left
// open for its owner to close.
func (r *Recorder) Close() {
	close(r.stop)
	r.wg.Wait()
}
