package main

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vclock",
	Short: "Vclock runs and inspects discrete-event simulations.",
	Long: `Vclock runs and inspects discrete-event simulations. ` +
		`It currently provides a demonstration simulation (demo) and a ` +
		`trace report (report).`,
}

// Execute runs the root command and exits through atexit, so registered exit
// handlers run.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
