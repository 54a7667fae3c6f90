package recording

import (
	"os"
	"strings"
	"time"
)

// RunInfo is one property of a recorded program run.
type RunInfo struct {
	Property string
	Value    string
}

// RunRecorder records metadata about a program run alongside the trace.
type RunRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []RunInfo
}

// NewRunRecorder creates a RunRecorder writing to recorder and creates its
// table.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	r := &RunRecorder{
		tableName: "run_info",
		recorder:  recorder,
		entries:   []RunInfo{},
	}

	r.recorder.CreateTable(r.tableName, RunInfo{})

	return r
}

// Start logs the start time, command line, and working directory.
func (r *RunRecorder) Start() {
	startTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	r.entries = append(r.entries, RunInfo{"Start Time", startTime})

	cmd := strings.Join(os.Args, " ")
	r.entries = append(r.entries, RunInfo{"Command", cmd})

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	r.entries = append(r.entries, RunInfo{"Working Directory", cwd})
}

// End writes the collected entries plus the end time and flushes.
func (r *RunRecorder) End() {
	for _, entry := range r.entries {
		r.recorder.InsertData(r.tableName, entry)
	}

	endTime := time.Now().Format("2006-01-02 15:04:05.000000000")
	r.recorder.InsertData(r.tableName, RunInfo{"End Time", endTime})

	r.entries = nil

	r.recorder.Flush()
}
