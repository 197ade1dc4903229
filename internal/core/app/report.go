package app

import (
	"context"
	"log/slog"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/scheduler"
	"time"
)

// Report is a snapshot of the diagnostics currently published.
type Report struct {
	Modules     int
	TypesReady  bool
	Diagnostics map[string][]module.Diagnostic
	Counts      map[module.Severity]int
}

// Errors returns how many error diagnostics the report holds.
func (r Report) Errors() int {
	return r.Counts[module.SeverityError]
}

func (a *App) settled() bool {
	return a.types.HasTypes() &&
		a.sched.Idle() &&
		a.sched.ActiveSweep() == scheduler.SweepNone &&
		a.sched.PendingSweep() == scheduler.SweepNone
}

// AwaitTypes blocks until engine types are ready. If the host has not
// started sending them within its connect timeout, the catalogue is
// finalized empty and analysis goes on without engine types.
func (a *App) AwaitTypes(ctx context.Context, poll time.Duration) error {
	return a.poll(ctx, poll, func() bool {
		if a.types.HasTypes() {
			return true
		}
		if a.sync == nil || (a.sync.TypesTimedOut() && !a.types.Receiving()) {
			slog.Warn("continuing without engine types")
			a.types.Finish()
			return true
		}
		return false
	})
}

// WaitSettled blocks until engine types are in, every queue has drained and
// no sweep is running.
func (a *App) WaitSettled(ctx context.Context, poll time.Duration) error {
	return a.poll(ctx, poll, a.settled)
}

// poll evaluates cond on the loop every poll interval until it holds.
func (a *App) poll(ctx context.Context, poll time.Duration, cond func() bool) error {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		var ok bool
		if err := a.loop.Call(ctx, func() { ok = cond() }); err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Snapshot collects the last published diagnostics of every known module.
// Documents without diagnostics are left out.
func (a *App) Snapshot(ctx context.Context) (Report, error) {
	r := Report{Diagnostics: make(map[string][]module.Diagnostic)}
	err := a.loop.Call(ctx, func() {
		all := a.registry.All()
		r.Modules = len(all)
		r.TypesReady = a.types.HasTypes()
		for _, m := range all {
			if diags := a.publisher.Current(m.URI); len(diags) > 0 {
				r.Diagnostics[m.URI] = diags
			}
		}
		r.Counts = a.publisher.Counts()
	})
	return r, err
}
