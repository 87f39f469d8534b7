// Package events publishes release lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// Type names a release lifecycle transition.
type Type string

const (
	Recorded  Type = "recorded"
	Forgotten Type = "forgotten"
	Pruned    Type = "pruned"
	Purged    Type = "purged"
	Evicted   Type = "evicted"
)

// Event describes one transition for one or more releases of an application.
type Event struct {
	Type      Type      `json:"type"`
	App       string    `json:"app"`
	Releases  []string  `json:"releases"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                          { return nil }

type conn interface {
	Publish(subj string, data []byte) error
	Close()
}

// NATSPublisher publishes JSON events on "<subject>.<app>.<type>".
type NATSPublisher struct {
	conn    conn
	subject string
	now     func() time.Time
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("releasekeeper-events"))
	if err != nil {
		return nil, errors.NewError(errors.CategoryNetwork, "failed to connect to NATS").
			WithCause(err).WithContext("url", url).Build()
	}
	slog.Info("NATS event publisher initialized", "url", url, "subject", subject)
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(c conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: c, subject: subject, now: time.Now}
}

// Publish sends ev. A zero timestamp is filled with the current time.
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subj := fmt.Sprintf("%s.%s.%s", p.subject, ev.App, ev.Type)
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	slog.Debug("Published release event", "subject", subj, "releases", len(ev.Releases))
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// Recorder keeps published events in memory; used by tests of publishing components.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends ev.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }
