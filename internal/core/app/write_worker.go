package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"scriptls/internal/core/ports"
	"scriptls/internal/data/queue"
	"scriptls/internal/shared/observability"
	"time"
)

func (a *App) initWriteQueue() error {
	if a == nil || a.Config == nil || a.store == nil {
		return nil
	}
	a.writeQueue = queue.NewMemoryQueue[ports.DiagnosticsWrite](a.Config.Diagnostics.QueueCapacity)
	return a.startWriteWorker()
}

func (a *App) startWriteWorker() error {
	if a == nil || a.writeQueue == nil || a.workerCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	a.workerDone = make(chan struct{})
	go a.runWriteWorker(ctx, a.writeQueue, a.workerDone)
	return nil
}

func (a *App) writeBatchSize() int {
	if a.Config.Diagnostics.BatchSize <= 0 {
		return 1
	}
	return a.Config.Diagnostics.BatchSize
}

func (a *App) runWriteWorker(ctx context.Context, q *queue.MemoryQueue[ports.DiagnosticsWrite], done chan struct{}) {
	defer close(done)

	batchSize := a.writeBatchSize()
	flushInterval := a.Config.Diagnostics.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 250 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := q.DequeueBatch(ctx, batchSize, flushInterval)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			slog.Warn("diagnostics queue dequeue failed", "error", err)
			continue
		}
		if len(batch) > 0 {
			a.applyWriteBatch(ctx, batch)
		}
		updateQueueMetrics(q)
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

// coalesceWrites keeps only the newest write per document, in first-seen
// order.
func coalesceWrites(batch []ports.DiagnosticsWrite) []ports.DiagnosticsWrite {
	index := make(map[string]int, len(batch))
	out := make([]ports.DiagnosticsWrite, 0, len(batch))
	for _, w := range batch {
		if i, ok := index[w.URI]; ok {
			out[i] = w
			continue
		}
		index[w.URI] = len(out)
		out = append(out, w)
	}
	return out
}

func (a *App) applyWriteBatch(ctx context.Context, batch []ports.DiagnosticsWrite) {
	if a.store == nil || len(batch) == 0 {
		return
	}
	writes := coalesceWrites(batch)
	started := time.Now()
	if err := a.store.SaveBatch(context.WithoutCancel(ctx), writes); err != nil {
		observability.DiagnosticsWriteErrorsTotal.Inc()
		slog.Warn("diagnostics persistence failed", "error", err, "batch_size", len(writes))
		return
	}
	observability.DiagnosticsWriteFlushSeconds.Observe(time.Since(started).Seconds())
}

func (a *App) enqueueDiagnosticsWrite(w ports.DiagnosticsWrite) {
	if a == nil || a.writeQueue == nil {
		return
	}
	if !a.writeQueue.Enqueue(w) {
		observability.DiagnosticsWriteDroppedTotal.Inc()
		slog.Debug("diagnostics queue full, dropping write", "uri", w.URI)
		return
	}
	updateQueueMetrics(a.writeQueue)
}

func (a *App) stopWriteWorker(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.workerCancel != nil {
		a.workerCancel()
		a.workerCancel = nil
	}
	if a.workerDone != nil {
		select {
		case <-a.workerDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		a.workerDone = nil
	}
	if a.writeQueue != nil {
		if err := a.writeQueue.Close(); err != nil {
			return err
		}
	}
	return a.drainWriteQueue(ctx)
}

func (a *App) drainWriteQueue(ctx context.Context) error {
	if a == nil || a.writeQueue == nil {
		return nil
	}
	batchSize := a.writeBatchSize()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := a.writeQueue.DequeueBatch(ctx, batchSize, 0)
		if len(batch) > 0 {
			a.applyWriteBatch(ctx, batch)
		}
		updateQueueMetrics(a.writeQueue)
		if errors.Is(err, io.EOF) || len(batch) == 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func updateQueueMetrics(q *queue.MemoryQueue[ports.DiagnosticsWrite]) {
	observability.DiagnosticsWriteQueueDepth.Set(float64(q.Len()))
}
