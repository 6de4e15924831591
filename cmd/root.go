// Package cmd wires the taskmesh command line interface.
package cmd

import "github.com/spf13/cobra"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taskmesh",
		Short:         "External task dispatcher for BPMN workflow engines",
		Long:          "taskmesh claims external tasks from a workflow engine, routes them to registered backend services based on the process definition's declared service coordinates, and reports results back to the engine.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
