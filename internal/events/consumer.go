package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openpreview/openpreview/internal/store"
	"github.com/openpreview/openpreview/pkg/types"
)

// Consumer mirrors the JetStream event feed into the durable store so
// thread history survives engine restarts and is queryable from any
// replica.
type Consumer struct {
	store store.Store
	nc    *nats.Conn
	js    nats.JetStreamContext
	sub   *nats.Subscription
}

// NewConsumer connects to NATS and prepares the history consumer.
func NewConsumer(st store.Store, natsURL string) (*Consumer, error) {
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
	_, _ = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		MaxAge:   7 * 24 * time.Hour,
	})

	return &Consumer{store: st, nc: nc, js: js}, nil
}

// Start begins consuming events and writing them to the store.
func (c *Consumer) Start() error {
	sub, err := c.js.Subscribe(subjectPrefix+">", c.handleMessage,
		nats.Durable("history-sync"),
		nats.AckExplicit(),
		nats.MaxAckPending(256),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.sub = sub
	log.Println("history_sync: subscribed to " + subjectPrefix + ">")
	return nil
}

// Stop stops the consumer and closes the NATS connection.
func (c *Consumer) Stop() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.nc.Close()
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	var ev types.DeploymentEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		log.Printf("history_sync: failed to unmarshal event: %v", err)
		msg.Ack()
		return
	}
	if ev.ThreadID == "" {
		log.Printf("history_sync: event without thread id on %s", msg.Subject)
		msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.store.RecordEvent(ctx, &ev); err != nil {
		log.Printf("history_sync: failed to record %s event for thread %s: %v", ev.Type, ev.ThreadID, err)
	}
	msg.Ack()
}
