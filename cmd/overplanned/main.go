package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName = "overplanned"
	version = "v0.4.0"
)

func main() {
	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Itinerary signal core: request service and nightly jobs",
		Version: version,
		Long: `overplanned runs the itinerary backend core: the behavioral signal
pipeline, group fairness, pivot cascades, micro-stop planning, and the
nightly learning jobs.

Use 'overplanned serve' for the request service and
'overplanned nightly' for the batch process.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/overplanned.yaml", "Path to YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP request service",
		Long:  "Starts the HTTP service with the signal pipeline, fairness, pivot, micro-stop, token and admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, verbose)
		},
	}

	nightlyCmd := &cobra.Command{
		Use:   "nightly",
		Short: "Run the nightly batch jobs",
		Long:  "Runs the behavioral write-back, persona update and training extract jobs for one UTC day window",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, _ := cmd.Flags().GetString("job")
			date, _ := cmd.Flags().GetString("date")
			return runNightly(configPath, verbose, job, date)
		},
	}
	nightlyCmd.Flags().String("job", "", "Run a single job (writeback|persona|extract); default runs all three in order")
	nightlyCmd.Flags().String("date", "", "Run date YYYY-MM-DD (UTC); default is yesterday")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(nightlyCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
