// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records who did what to the control plane. Every
// privileged operation produces exactly one record, success or failure.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"grimm.is/foreman/internal/logging"
)

// Outcome is the terminal result of an audited operation.
type Outcome string

const (
	Success Outcome = "SUCCESS"
	Failure Outcome = "FAILURE"
)

// Record is a single audit event.
type Record struct {
	ID        string
	Time      time.Time
	Actor     string
	Operation string
	Target    string
	ACL       string
	Outcome   Outcome
	Reason    string
}

// Line renders the record in the canonical single-line form.
func (r Record) Line() string {
	s := fmt.Sprintf("actor=%s op=%s target=%s acl=%s outcome=%s",
		r.Actor, r.Operation, r.Target, r.ACL, r.Outcome)
	if r.Reason != "" {
		s += " reason=" + r.Reason
	}
	return s
}

// Sink receives finished audit records.
type Sink interface {
	Emit(Record)
}

// LogSink writes records through the structured logger.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink returns a sink writing to log under the audit component.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log.With("component", "audit")}
}

// Emit writes one record. Failures are logged at warn so they stand
// out when scanning for denied or failed operations.
func (s *LogSink) Emit(r Record) {
	if r.Outcome == Success {
		s.log.Info(r.Line(), "audit_id", r.ID)
	} else {
		s.log.Warn(r.Line(), "audit_id", r.ID)
	}
}

// Trail stamps records with the local service identity and current ACL
// before handing them to the sink.
type Trail struct {
	target string
	sink   Sink
	now    func() time.Time
}

// NewTrail returns a trail that attributes records to target.
func NewTrail(target string, sink Sink) *Trail {
	return &Trail{target: target, sink: sink, now: time.Now}
}

// Success records a completed operation.
func (t *Trail) Success(actor, operation, acl string) Record {
	return t.emit(actor, operation, acl, Success, "")
}

// Failure records a denied or failed operation with its reason.
func (t *Trail) Failure(actor, operation, acl, reason string) Record {
	return t.emit(actor, operation, acl, Failure, reason)
}

func (t *Trail) emit(actor, operation, acl string, outcome Outcome, reason string) Record {
	r := Record{
		ID:        uuid.NewString(),
		Time:      t.now(),
		Actor:     actor,
		Operation: operation,
		Target:    t.target,
		ACL:       acl,
		Outcome:   outcome,
		Reason:    reason,
	}
	t.sink.Emit(r)
	return r
}
