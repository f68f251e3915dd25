// Package events publishes moat domain events to NATS JetStream so
// downstream consumers (billing, notifications, analytics) can react
// to pattern and safety activity without polling the store.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/internal/metrics"
	"github.com/nats-io/nats.go"
)

// Config holds NATS configuration
type Config struct {
	URL        string        // NATS server URL (e.g., "nats://nats:4222")
	StreamName string        // JetStream stream name (default: "MOAT")
	Timeout    time.Duration // Connection timeout
}

// Publisher is a fire-and-forget JetStream publisher. Event delivery is
// best effort: the pattern and safety pipelines never block or fail on
// the bus.
type Publisher struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	logs    *logging.Manager
	metrics *metrics.Metrics
}

// NewPublisher connects to NATS and ensures the moat stream exists.
func NewPublisher(cfg Config, logs *logging.Manager) (*Publisher, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "MOAT"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.StreamName,
			Subjects:  []string{"moat.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
			Replicas:  1,
			Discard:   nats.DiscardOld,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &Publisher{
		conn:    nc,
		js:      js,
		logs:    logs,
		metrics: metrics.NewMetrics(),
	}, nil
}

// Publish serializes the payload and publishes it asynchronously.
// Failures are logged and dropped.
func (p *Publisher) Publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.warn(subject, err)
		return
	}

	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.warn(subject, err)
		return
	}

	p.metrics.EventsPublished.WithLabelValues(subject).Inc()
}

// Close drains in-flight publishes and closes the connection.
func (p *Publisher) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
	}
	p.conn.Close()
}

func (p *Publisher) warn(subject string, err error) {
	if p.logs != nil {
		p.logs.Warn("events", "failed to publish event", map[string]any{
			"subject": subject, "error": err.Error(),
		})
	}
}
