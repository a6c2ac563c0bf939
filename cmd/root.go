package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// CLI flags for the demo exchange geometry
	logLevel    string // Log verbosity level
	configPath  string // Optional YAML run configuration
	globalGrid  []int  // Full lattice extents per axis
	rankGrid    []int  // Rank decomposition per axis
	periodic    []bool // Periodicity per axis
	haloWidth   int    // Halo margin width in sites
	fieldValues int    // float64 values per lattice site
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "lattice-sim",
	Short: "Halo exchange toolkit for distributed lattice simulations",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging applies the --log flag before a subcommand runs
func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration (overrides geometry flags)")

	// Lattice geometry
	runCmd.Flags().IntSliceVar(&globalGrid, "global-grid", []int{8, 8, 8}, "Comma-separated global lattice extents (x,y,z)")
	runCmd.Flags().IntSliceVar(&rankGrid, "rank-grid", []int{1, 1, 2}, "Comma-separated rank counts per axis (x,y,z)")
	runCmd.Flags().BoolSliceVar(&periodic, "periodic", []bool{true, true, true}, "Comma-separated periodicity per axis (x,y,z)")
	runCmd.Flags().IntVar(&haloWidth, "halo", 1, "Halo margin width in lattice sites")
	runCmd.Flags().IntVar(&fieldValues, "field-values", 1, "Number of float64 values per lattice site")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
