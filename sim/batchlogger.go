package sim

import (
	"log"
)

// A LogHook is a hook that is resonsible for recording information from the
// simulation
type LogHook interface {
	Hook
}

// LogHookBase proovides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}

// BatchLogger is a hook that prints the batches a clock executes
type BatchLogger struct {
	LogHookBase
}

// NewBatchLogger returns a new BatchLogger which will write in to the logger
func NewBatchLogger(logger *log.Logger) *BatchLogger {
	h := new(BatchLogger)
	h.Logger = logger
	return h
}

// Func writes the batch information into the logger
func (h *BatchLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeBatch {
		return
	}

	batch, ok := ctx.Item.(BatchInfo)
	if !ok {
		return
	}

	h.Printf("%.10f, batch of %d", batch.Time, len(batch.IDs))
}
