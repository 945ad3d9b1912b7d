// Package alerting fans security-relevant events out to configured sinks.
// Chain-structural violations are never auto-repaired; they end up here and
// are escalated for human review at case level.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event kinds raised by the custody core.
const (
	EventIntegrityMismatch  = "integrity_mismatch"
	EventChainBroken        = "chain_broken"
	EventImmutableViolation = "immutable_violation"
	EventVerificationError  = "verification_error"
	// EventLedgerWriteGap: a registry write committed but its paired ledger
	// write (or the reverse) failed, leaving the two stores out of step
	// until an operator reconciles them.
	EventLedgerWriteGap = "ledger_write_gap"
)

// Alert is a single security-relevant event.
type Alert struct {
	Kind       string            `json:"kind"`
	Severity   Severity          `json:"severity"`
	EvidenceID uuid.UUID         `json:"evidence_id"`
	Detail     string            `json:"detail"`
	Fields     map[string]string `json:"fields,omitempty"`
	RaisedAt   time.Time         `json:"raised_at"`
}

// Sink delivers alerts somewhere. Delivery failures must not block the
// custody path; sinks log and move on.
type Sink interface {
	Deliver(ctx context.Context, a Alert)
}

// Dispatcher fans alerts out to all registered sinks. A nil *Dispatcher is
// valid and drops everything, so callers never need nil checks.
type Dispatcher struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Raise delivers the alert to every sink.
func (d *Dispatcher) Raise(ctx context.Context, a Alert) {
	if d == nil {
		return
	}
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now().UTC()
	}
	for _, s := range d.sinks {
		s.Deliver(ctx, a)
	}
}

// LogSink writes alerts to the structured log. Always present in production
// wiring so no alert can vanish even with no other sink configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, a Alert) {
	fields := []zap.Field{
		zap.String("kind", a.Kind),
		zap.String("severity", string(a.Severity)),
		zap.String("evidence_id", a.EvidenceID.String()),
		zap.String("detail", a.Detail),
	}
	for k, v := range a.Fields {
		fields = append(fields, zap.String(k, v))
	}
	if a.Severity == SeverityCritical {
		s.logger.Error("custody alert", fields...)
		return
	}
	s.logger.Warn("custody alert", fields...)
}
