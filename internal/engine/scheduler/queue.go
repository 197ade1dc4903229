package scheduler

import "scriptls/internal/engine/module"

// Stage identifies one of the four analysis queues.
type Stage int

const (
	StageNone Stage = iota - 1
	StageLoad
	StageParse
	StagePostProcessTypes
	StageResolve
)

const stageCount = 4

func (s Stage) String() string {
	switch s {
	case StageLoad:
		return "load"
	case StageParse:
		return "parse"
	case StagePostProcessTypes:
		return "post_process_types"
	case StageResolve:
		return "resolve"
	default:
		return "none"
	}
}

// queue is an append-only slice consumed through a cursor. Consumed entries
// stay in place until the whole slice is drained, at which point storage and
// cursor are reset together.
type queue struct {
	items  []*module.Module
	cursor int
	queued map[*module.Module]struct{}
	dedupe bool
}

func newQueue(dedupe bool) *queue {
	return &queue{queued: make(map[*module.Module]struct{}), dedupe: dedupe}
}

// push appends m unless it is still waiting past the cursor.
func (q *queue) push(m *module.Module) bool {
	if q.dedupe {
		if _, ok := q.queued[m]; ok {
			return false
		}
		q.queued[m] = struct{}{}
	}
	q.items = append(q.items, m)
	return true
}

func (q *queue) pending() int {
	return len(q.items) - q.cursor
}

func (q *queue) empty() bool {
	return q.pending() == 0
}

// take consumes up to n entries from the cursor.
func (q *queue) take(n int) []*module.Module {
	end := q.cursor + n
	if end > len(q.items) {
		end = len(q.items)
	}
	batch := append([]*module.Module(nil), q.items[q.cursor:end]...)
	if q.dedupe {
		for _, m := range batch {
			delete(q.queued, m)
		}
	}
	q.cursor = end
	if q.cursor >= len(q.items) {
		q.reset()
	}
	return batch
}

func (q *queue) reset() {
	q.items = nil
	q.cursor = 0
	if len(q.queued) > 0 {
		q.queued = make(map[*module.Module]struct{})
	}
}
