package app

import (
	"context"
	"fmt"
	"scriptls/internal/engine/module"
	"scriptls/internal/engine/scheduler"
	"scriptls/internal/host"
	"scriptls/internal/shared/util"
	"time"
)

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Components  map[string]string `json:"components"`
	Modules     map[string]int    `json:"modules"`
	QueueDepths map[string]int    `json:"queue_depths"`
	Host        *host.Status      `json:"host,omitempty"`
	Runtime     util.RuntimeStats `json:"runtime"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

// Check snapshots the analysis state. It is served off the loop, so it
// reports "down" if the loop does not answer in time.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:      "up",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(s.app.startedAt).Round(time.Second).String(),
		Components:  make(map[string]string),
		Modules:     make(map[string]int),
		QueueDepths: make(map[string]int),
		Runtime:     util.ReadRuntimeStats(),
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.app.loop.Call(ctx, func() { s.app.fillHealth(&status) })
	if err != nil {
		status.Status = "down"
		status.Components["loop"] = fmt.Sprintf("unresponsive: %v", err)
	}
	return status
}

func (a *App) fillHealth(status *HealthStatus) {
	status.Components["loop"] = "ok"

	for state, n := range a.registry.CountByState() {
		status.Modules[state.String()] = n
	}
	for stage, n := range a.sched.Depths() {
		status.QueueDepths[stage.String()] = n
	}
	if a.sched.Idle() {
		status.Components["scheduler"] = "idle"
	} else {
		status.Components["scheduler"] = "busy"
	}
	if sweep := a.sched.ActiveSweep(); sweep != scheduler.SweepNone {
		status.Components["sweep"] = sweep.String()
	}

	switch {
	case a.types.HasTypes():
		status.Components["types"] = fmt.Sprintf("ready (%d types)", a.types.Len())
	case a.types.Receiving():
		status.Components["types"] = "receiving"
	case a.sync != nil && a.sync.TypesTimedOut():
		status.Status = "degraded"
		status.Components["types"] = "timed out waiting for host"
	default:
		status.Components["types"] = "waiting"
	}

	if a.sync == nil {
		status.Components["host"] = "disabled"
	} else {
		hs := a.sync.Status()
		status.Host = &hs
		if hs.Connected {
			status.Components["host"] = "connected"
		} else {
			status.Components["host"] = "disconnected"
		}
	}

	if a.store != nil {
		status.Components["diagnostics_store"] = fmt.Sprintf("ok (%d queued)", a.writeQueue.Len())
	} else if a.Config.Diagnostics.StoreEnabled {
		status.Status = "degraded"
		status.Components["diagnostics_store"] = "missing but enabled in config"
	}

	if a.activeWatcher != nil {
		status.Components["watcher"] = "ok"
	}
	status.Components["queries"] = fmt.Sprintf("%d active", a.queries.Active())
}

// ModuleCounts returns how many modules sit in each state.
func (a *App) ModuleCounts(ctx context.Context) (map[module.State]int, error) {
	var out map[module.State]int
	err := a.loop.Call(ctx, func() { out = a.registry.CountByState() })
	return out, err
}
