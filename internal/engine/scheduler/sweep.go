package scheduler

import (
	"context"
	"log/slog"
	"scriptls/internal/engine/loop"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SweepKind identifies a bulk pass over every loaded module.
type SweepKind int

const (
	SweepNone SweepKind = iota
	SweepDirty
	SweepReResolve
)

func (k SweepKind) String() string {
	switch k {
	case SweepDirty:
		return "dirty"
	case SweepReResolve:
		return "re_resolve"
	default:
		return "none"
	}
}

type sweep struct {
	kind    SweepKind
	modules []*module.Module
	index   int
	timer   *loop.Timer
	span    trace.Span
}

// DirtyAllDiagnostics republishes diagnostics for every resolved module. A
// request made while a re-resolve sweep is running or pending is absorbed by
// it.
func (s *Scheduler) DirtyAllDiagnostics() {
	if s.ActiveSweep() == SweepReResolve || s.pendingSweep == SweepReResolve {
		return
	}
	s.startSweep(SweepDirty)
}

// ReResolveAllModules clears Resolved on every module immediately, then
// resolves and republishes them in chunks once the scheduler is idle.
func (s *Scheduler) ReResolveAllModules() {
	cleared := s.registry.ClearAllResolved()
	slog.Debug("cleared resolved modules", "count", cleared)
	s.startSweep(SweepReResolve)
}

// ActiveSweep returns the kind of the sweep currently stepping, if any.
func (s *Scheduler) ActiveSweep() SweepKind {
	if s.sweep == nil {
		return SweepNone
	}
	return s.sweep.kind
}

// PendingSweep returns the sweep deferred until the scheduler goes idle.
func (s *Scheduler) PendingSweep() SweepKind {
	return s.pendingSweep
}

func (s *Scheduler) startSweep(kind SweepKind) {
	s.stopSweep()
	if !s.idle {
		if kind > s.pendingSweep {
			s.pendingSweep = kind
		}
		return
	}
	s.pendingSweep = SweepNone

	_, span := observability.Tracer.Start(context.Background(), "scheduler.Sweep",
		trace.WithAttributes(attribute.String("kind", kind.String())))
	sw := &sweep{kind: kind, span: span}
	for _, m := range s.registry.All() {
		if m.Loaded() {
			sw.modules = append(sw.modules, m)
		}
	}
	span.SetAttributes(attribute.Int("modules", len(sw.modules)))
	observability.SweepsTotal.WithLabelValues(kind.String()).Inc()
	sw.timer = s.loop.Every(s.cfg.SweepInterval, func() { s.stepSweep(sw) })
	s.sweep = sw
}

func (s *Scheduler) stopSweep() {
	if s.sweep == nil {
		return
	}
	s.sweep.timer.Stop()
	s.sweep.span.End()
	s.sweep = nil
}

// stepSweep handles the next batch. While the queues are busy, or a module
// cannot be resolved yet, it keeps its place and tries again next interval.
func (s *Scheduler) stepSweep(sw *sweep) {
	if s.sweep != sw {
		sw.timer.Stop()
		return
	}
	if !s.idle {
		return
	}
	for i := 0; i < s.cfg.SweepBatch; i++ {
		if sw.index >= len(sw.modules) {
			s.stopSweep()
			return
		}
		m := sw.modules[sw.index]
		switch sw.kind {
		case SweepDirty:
			if m.Resolved() && s.publisher != nil {
				s.publisher.PublishModule(m)
			}
		case SweepReResolve:
			if !m.Resolved() {
				if !s.CanResolve() {
					return
				}
				s.resolve(m)
			}
		}
		sw.index++
	}
	if sw.index >= len(sw.modules) {
		s.stopSweep()
	}
}
