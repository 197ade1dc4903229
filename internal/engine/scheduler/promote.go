package scheduler

import (
	"context"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Promote synchronously brings m as far through the stages as readiness
// allows so an interactive request can be answered. Queue positions are left
// alone; queued stages on m become no-ops once they are reached.
// It reports whether m ended up resolved.
func (s *Scheduler) Promote(m *module.Module) bool {
	if m == nil {
		return false
	}
	if m.Resolved() {
		return true
	}
	_, span := observability.Tracer.Start(context.Background(), "scheduler.Promote",
		trace.WithAttributes(attribute.String("module", m.Name)))
	defer span.End()
	observability.PromotionsTotal.Inc()

	s.parseWithDependencies(m)
	if !s.CanResolve() {
		span.SetAttributes(attribute.Bool("resolved", false))
		return false
	}
	s.postProcessWithDependencies(m)
	s.resolve(m)
	return m.Resolved()
}

// PromoteParsed only guarantees m and its imports are parsed. Features
// that work on syntax alone use it before types are available.
func (s *Scheduler) PromoteParsed(m *module.Module) {
	if m == nil {
		return
	}
	s.parseWithDependencies(m)
}

// Reload marks m for a fresh read from disk and re-runs parse, then resolves
// when ready. Opened documents are left to the editor's content.
func (s *Scheduler) Reload(m *module.Module) {
	if m == nil || m.IsOpened {
		return
	}
	m.ResetTo(module.StateUnloaded)
	s.load(m)
	s.parseWithDependencies(m)
	if s.CanResolve() && s.queues[StageParse].empty() {
		s.postProcessWithDependencies(m)
		s.resolve(m)
		return
	}
	s.Enqueue(StagePostProcessTypes, m)
}
