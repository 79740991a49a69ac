package main

import (
	"fmt"
	"os"

	"github.com/biodoia/smartwatcher/cmd/smartwatcher/commands"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	commands.Version = version

	rootCmd := &cobra.Command{
		Use:   "smartwatcher",
		Short: "SmartWatcher - multi-agent replies for social posts",
		Long: `SmartWatcher - multi-agent replies for social posts

Runs an ordered pipeline of agents over a social-media post: each agent
sees the post, its own task and everything the agents before it wrote.
The last agent's output is the suggested public reply.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.CritiqueCmd)
	rootCmd.AddCommand(commands.PersonasCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DoctorCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("SmartWatcher version %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
