// Package notify publishes the "stats complete" signal of aggregation runs on
// a NATS subject so dashboards and other collaborators can refresh.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bouncestorage/bounce-stats/pkg/usagestats"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject completion events are published on.
const DefaultSubject = "bounce.stats.complete"

// EventName identifies completion events on the wire.
const EventName = "objectStoreStatsComplete"

// Event is the JSON payload of a completion message.
type Event struct {
	Event       string                        `json:"event"`
	RunID       string                        `json:"run_id"`
	StartedAt   time.Time                     `json:"started_at"`
	CompletedAt time.Time                     `json:"completed_at"`
	Results     []usagestats.ObjectStoreStats `json:"results"`
}

// Conn is the subset of *nats.Conn used by Publisher.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends completion events to NATS. It implements usagestats.Notifier.
type Publisher struct {
	conn    Conn
	subject string
	close   func()
}

// NewPublisher publishes on subject through an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Connect dials url and returns a publisher owning the connection.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bounce-stats"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	p := NewPublisher(nc, subject)
	p.close = nc.Close
	return p, nil
}

// NotifyComplete publishes c and flushes so the event is on the wire before
// the run is reported done.
func (p *Publisher) NotifyComplete(ctx context.Context, c usagestats.Completion) error {
	data, err := json.Marshal(Event{
		Event:       EventName,
		RunID:       c.RunID,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		Results:     c.Results,
	})
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}

// Close closes the connection if the publisher owns it.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
