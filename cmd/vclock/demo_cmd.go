package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbayer/events/monitoring"
	"github.com/pbayer/events/recording"
	"github.com/pbayer/events/sim"
)

var (
	demoDuration float64
	demoEvents   int
	demoCycle    float64
	demoRecord   string
	demoMonitor  bool
	demoVerbose  bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demonstration simulation",
	Long: `Demo builds a clock, schedules a mix of one-shot and cyclic ` +
		`events over the requested duration, runs the clock, and reports ` +
		`how many events executed.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.SilenceUsage = true

		runDemo()
	},
}

func init() {
	demoCmd.Flags().Float64Var(&demoDuration, "duration", 10,
		"virtual duration to run for")
	demoCmd.Flags().IntVar(&demoEvents, "events", 10,
		"number of one-shot events to schedule")
	demoCmd.Flags().Float64Var(&demoCycle, "cycle", 1,
		"period of the cyclic heartbeat event, 0 to disable")
	demoCmd.Flags().StringVar(&demoRecord, "record", "",
		"record the execution trace into the SQLite database <name>.sqlite3")
	demoCmd.Flags().BoolVar(&demoMonitor, "monitor", false,
		"serve the HTTP monitor while the simulation runs")
	demoCmd.Flags().BoolVar(&demoVerbose, "verbose", false,
		"log every executed batch")

	rootCmd.AddCommand(demoCmd)
}

func runDemo() {
	clock := sim.NewClock(0)
	clock.RunTimeout = 0

	if demoVerbose {
		logger := log.New(os.Stdout, "", 0)
		clock.AcceptHook(sim.NewBatchLogger(logger))
	}

	var runRecorder *recording.RunRecorder
	if demoRecord != "" {
		recorder := recording.NewRecorder(demoRecord)
		clock.AcceptHook(recording.NewTraceHook(recorder))

		runRecorder = recording.NewRunRecorder(recorder)
		runRecorder.Start()
	}

	if demoMonitor {
		monitor := monitoring.NewMonitor()
		monitor.RegisterClock(clock)
		monitor.StartServer()
	}

	scheduleDemoEvents(clock)

	res, err := clock.Run(sim.VTime(demoDuration))
	if err != nil {
		log.Fatalf("Error running simulation: %v", err)
	}

	if runRecorder != nil {
		runRecorder.End()
	}

	fmt.Printf("Executed %d events, virtual time %.4f\n",
		res.Events, float64(res.Time))
}

func scheduleDemoEvents(clock *sim.Clock) {
	spacing := demoDuration / float64(demoEvents+1)

	for i := 1; i <= demoEvents; i++ {
		t := sim.VTime(float64(i) * spacing)

		_, err := clock.EventAt(func(_ *sim.Clock) any { return nil }, t)
		if err != nil {
			log.Fatalf("Error scheduling event: %v", err)
		}
	}

	if demoCycle > 0 {
		_, err := clock.Event(sim.EventSpec{
			Action: func(_ *sim.Clock) any { return nil },
			Timing: sim.After,
			Time:   sim.VTime(demoCycle),
			Cycle:  sim.VTime(demoCycle),
		})
		if err != nil {
			log.Fatalf("Error scheduling heartbeat: %v", err)
		}
	}
}
