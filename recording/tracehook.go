package recording

import (
	"context"
	"sync"

	"github.com/pbayer/events/sim"
)

// BatchEntry is one executed batch in the trace.
type BatchEntry struct {
	Time float64
	Size int
}

// ActionEntry is one executed action in the trace.
type ActionEntry struct {
	EventID int64
	Time    float64
}

const (
	batchTable  = "batches"
	actionTable = "actions"
)

// TraceHook records every executed batch and action of a clock into a
// DataRecorder. Actions of a batch run in parallel, so the hook serializes
// its writes with a mutex.
type TraceHook struct {
	mu       sync.Mutex
	recorder DataRecorder
}

// NewTraceHook creates a TraceHook writing to recorder and creates the
// trace tables.
func NewTraceHook(recorder DataRecorder) *TraceHook {
	recorder.CreateTable(batchTable, BatchEntry{})
	recorder.CreateTable(actionTable, ActionEntry{})

	return &TraceHook{recorder: recorder}
}

// Func records batch starts and action completions.
func (h *TraceHook) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosBeforeBatch:
		info := ctx.Item.(sim.BatchInfo)

		h.mu.Lock()
		defer h.mu.Unlock()

		h.recorder.InsertData(batchTable, BatchEntry{
			Time: float64(info.Time),
			Size: len(info.IDs),
		})
	case sim.HookPosAfterAction:
		info := ctx.Item.(sim.ActionInfo)

		h.mu.Lock()
		defer h.mu.Unlock()

		h.recorder.InsertData(actionTable, ActionEntry{
			EventID: int64(info.ID),
			Time:    float64(info.Time),
		})
	}
}

// MapTraceTables registers the trace tables on a reader so a recorded
// database can be queried back.
func MapTraceTables(reader DataReader) {
	reader.MapTable(batchTable, BatchEntry{})
	reader.MapTable(actionTable, ActionEntry{})
}

// QueryBatches reads recorded batches from a reader prepared with
// MapTraceTables.
func QueryBatches(
	ctx context.Context,
	reader DataReader,
	params QueryParams,
) ([]BatchEntry, int, error) {
	rows, total, err := reader.Query(ctx, batchTable, params)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]BatchEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, *row.(*BatchEntry))
	}

	return entries, total, nil
}

// QueryActions reads recorded actions from a reader prepared with
// MapTraceTables.
func QueryActions(
	ctx context.Context,
	reader DataReader,
	params QueryParams,
) ([]ActionEntry, int, error) {
	rows, total, err := reader.Query(ctx, actionTable, params)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]ActionEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, *row.(*ActionEntry))
	}

	return entries, total, nil
}
