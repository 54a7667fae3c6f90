package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/pbayer/events/recording"
)

var (
	reportDB    string
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a recorded execution trace",
	Long: `Report reads a trace database written by demo --record and ` +
		`prints the executed batches.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.SilenceUsage = true

		runReport()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDB, "db", "",
		"path to the trace database")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20,
		"maximum number of batches to print")
	reportCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(reportCmd)
}

func runReport() {
	reader := recording.NewReader(reportDB)
	defer reader.Close()

	recording.MapTraceTables(reader)

	ctx := context.Background()

	_, actionCount, err := recording.QueryActions(ctx, reader,
		recording.QueryParams{Limit: 1})
	if err != nil {
		log.Fatalf("Error reading trace: %v", err)
	}

	batches, batchCount, err := recording.QueryBatches(ctx, reader,
		recording.QueryParams{OrderBy: "Time", Limit: reportLimit})
	if err != nil {
		log.Fatalf("Error reading trace: %v", err)
	}

	fmt.Printf("%d actions in %d batches\n", actionCount, batchCount)

	for _, b := range batches {
		fmt.Printf("%.4f: batch of %d\n", b.Time, b.Size)
	}
}
