package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/pkg/types"
)

// Publisher relays engine events to NATS JetStream.
type Publisher struct {
	nc    *nats.Conn
	js    nats.JetStreamContext
	queue chan *types.DeploymentEvent
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(natsURL string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Ensure the stream exists
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		MaxAge:   7 * 24 * time.Hour, // Retain for 7 days
	})
	if err != nil {
		// Stream may already exist, that's OK
		log.Printf("event_publisher: stream setup: %v", err)
	}

	p := &Publisher{
		nc:    nc,
		js:    js,
		queue: make(chan *types.DeploymentEvent, 256),
		stop:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.drain()
	return p, nil
}

// Publish enqueues an event for delivery. It never blocks: the engine calls
// it while holding a session lock, so a slow or unreachable broker drops
// events instead of stalling deploys.
func (p *Publisher) Publish(ev *types.DeploymentEvent) {
	select {
	case p.queue <- ev:
	default:
		log.Printf("event_publisher: queue full, dropping %s event for thread %s", ev.Type, ev.ThreadID)
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		case <-p.stop:
			// Final flush
			for {
				select {
				case ev := <-p.queue:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(ev *types.DeploymentEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("event_publisher: marshal error for thread %s: %v", ev.ThreadID, err)
		return
	}
	if _, err := p.js.Publish(Subject(ev.ThreadID, ev.Type), data); err != nil {
		log.Printf("event_publisher: publish error for thread %s: %v", ev.ThreadID, err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type).Inc()
}

// Close flushes queued events and closes the NATS connection.
func (p *Publisher) Close() {
	close(p.stop)
	p.wg.Wait()
	p.nc.Close()
}
