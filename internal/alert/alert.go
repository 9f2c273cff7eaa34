// Package alert fans operator-visible incidents out to a set of channels
// over an alitto/pond worker pool, and keeps a bounded in-memory incident
// log the dashboard can surface ("operator-visible faults are persisted
// as incident rows").
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeguard/internal/core"
	"tradeguard/pkg/concurrency"
)

// Level classifies an alert's severity.
type Level string

const (
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Payload is the fully-formed alert handed to every channel.
type Payload struct {
	IncidentID string
	Level      Level
	Title      string
	Message    string
	Timestamp  time.Time
	Fields     map[string]string
}

// Channel delivers a payload somewhere — a log line, a webhook, a file.
// Chat-app delivery (Slack/Telegram) is not implemented; see DESIGN.md.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload Payload) error
}

// Manager dispatches alerts to every registered channel concurrently via
// a bounded worker pool (so a slow channel cannot stall the caller) and
// appends every alert to a capped incident ring buffer.
type Manager struct {
	channels []Channel
	pool     *concurrency.WorkerPool
	logger   core.ILogger

	mu        sync.Mutex
	incidents []Incident
	capacity  int
}

// Incident is one row of the operator-visible incident log.
type Incident struct {
	ID        string
	Level     Level
	Title     string
	Message   string
	Fields    map[string]string
	CreatedAt time.Time
}

// Config sizes the dispatch pool and the incident ring buffer.
type Config struct {
	PoolSize     int
	PoolCapacity int
	LogCapacity  int
}

// New builds a Manager with a log-based default channel already
// registered, so at least one channel is available before any
// integrations are configured.
func New(cfg Config, logger core.ILogger) *Manager {
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = 256
	}
	m := &Manager{
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "alert_dispatch",
			MaxWorkers:  cfg.PoolSize,
			MaxCapacity: cfg.PoolCapacity,
			NonBlocking: true,
		}, logger),
		logger:   logger.WithField("component", "alert_manager"),
		capacity: cfg.LogCapacity,
	}
	m.AddChannel(&logChannel{logger: logger.WithField("component", "alert_log_channel")})
	return m
}

// AddChannel registers an additional delivery channel (e.g. a webhook).
func (m *Manager) AddChannel(ch Channel) {
	m.channels = append(m.channels, ch)
}

// Critical implements core.IAlerter.
func (m *Manager) Critical(ctx context.Context, title, message string, fields map[string]string) {
	m.dispatch(ctx, LevelCritical, title, message, fields)
}

// Warn implements core.IAlerter.
func (m *Manager) Warn(ctx context.Context, title, message string, fields map[string]string) {
	m.dispatch(ctx, LevelWarning, title, message, fields)
}

func (m *Manager) dispatch(ctx context.Context, level Level, title, message string, fields map[string]string) {
	payload := Payload{
		IncidentID: uuid.NewString(),
		Level:      level,
		Title:      title,
		Message:    message,
		Timestamp:  time.Now(),
		Fields:     fields,
	}
	m.record(payload)

	for _, ch := range m.channels {
		ch := ch
		err := m.pool.Submit(func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := ch.Send(sendCtx, payload); err != nil {
				m.logger.Error("alert channel delivery failed", "channel", ch.Name(), "error", err)
			}
		})
		if err != nil {
			m.logger.Warn("alert dispatch pool full, delivering inline", "channel", ch.Name())
			_ = ch.Send(ctx, payload)
		}
	}
}

func (m *Manager) record(p Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents = append(m.incidents, Incident{
		ID: p.IncidentID, Level: p.Level, Title: p.Title, Message: p.Message, Fields: p.Fields, CreatedAt: p.Timestamp,
	})
	if len(m.incidents) > m.capacity {
		m.incidents = m.incidents[len(m.incidents)-m.capacity:]
	}
}

// Incidents returns a snapshot of the incident log, most recent last, for
// the dashboard to serve.
func (m *Manager) Incidents() []Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Incident, len(m.incidents))
	copy(out, m.incidents)
	return out
}

// Close stops the dispatch pool, waiting for in-flight deliveries.
func (m *Manager) Close() { m.pool.Stop() }

type logChannel struct {
	logger core.ILogger
}

func (logChannel) Name() string { return "log" }

func (c logChannel) Send(ctx context.Context, p Payload) error {
	if p.Level == LevelCritical {
		c.logger.Error(p.Title, "message", p.Message, "incident_id", p.IncidentID)
	} else {
		c.logger.Warn(p.Title, "message", p.Message, "incident_id", p.IncidentID)
	}
	return nil
}

var _ core.IAlerter = (*Manager)(nil)
