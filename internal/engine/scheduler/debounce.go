package scheduler

import (
	"context"
	"scriptls/internal/engine/module"
	"scriptls/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContentChanged applies new editor content to m immediately and schedules
// a re-analysis after the debounce interval, replacing any pending one.
func (s *Scheduler) ContentChanged(m *module.Module, text string) {
	m.SetContent(text)
	s.scheduleReanalysis(m)
}

// scheduleReanalysis (re)arms the debounce timer of m.
func (s *Scheduler) scheduleReanalysis(m *module.Module) {
	m.ReplaceDebounce(s.loop.AfterFunc(s.cfg.Debounce, func() {
		m.ClearDebounce()
		s.reanalyze(m)
	}))
}

// reanalyze parses m with its imports and, when types are ready and no
// load or parse work is outstanding, resolves it straight away. Modules that
// import m lose their resolved state and are queued for resolution.
// Otherwise m is handed to the queues.
func (s *Scheduler) reanalyze(m *module.Module) {
	_, span := observability.Tracer.Start(context.Background(), "scheduler.Reanalyze",
		trace.WithAttributes(attribute.String("module", m.Name)))
	defer span.End()
	observability.DebounceFiresTotal.Inc()

	s.parseWithDependencies(m)
	if !s.CanResolve() || !s.queues[StageParse].empty() {
		span.SetAttributes(attribute.Bool("deferred", true))
		s.Enqueue(StagePostProcessTypes, m)
		return
	}

	s.postProcessWithDependencies(m)
	s.resolve(m)

	for _, dependent := range s.registry.Dependents(m.Name) {
		if dependent.Resolved() {
			dependent.ResetTo(module.StateTypesPostProcessed)
		}
		s.Enqueue(StageResolve, dependent)
	}
}
