package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/spf13/cobra"
)

// RunCmd rappresenta il comando run
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent pipeline on a post",
	Long: `Run the selected agents, in order, on a social-media post and print
the final reply. Progress events are printed as they happen.`,
	Example: `  # Run the default researcher -> pr_writer pipeline on the sample post
  smartwatcher run

  # Custom ordering, post read from stdin, JSON output
  echo "Is MRVL still a buy?" | smartwatcher run --post-file - \
    --agents researcher,fact_checker,pr_writer,editor --json`,
	RunE: runRun,
}

var (
	runPost     string
	runPostFile string
	runAgents   []string
	runJSON     bool
	runVerbose  bool
)

func init() {
	RunCmd.Flags().StringVarP(&runPost, "post", "p", "", "Post text (defaults to ui.default_post)")
	RunCmd.Flags().StringVar(&runPostFile, "post-file", "", "Read the post from a file, or - for stdin")
	RunCmd.Flags().StringSliceVarP(&runAgents, "agents", "a", []string{persona.Researcher, persona.PRWriter}, "Ordered, comma-separated agent ids")
	RunCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full run result as JSON")
	RunCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print every step output")
}

func runRun(cmd *cobra.Command, args []string) error {
	svcs, err := bootstrap(cmd, "warn")
	if err != nil {
		return err
	}
	defer svcs.Close()

	in, err := readInput(svcs.cfg, runPost, runPostFile, runAgents, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := newEventPrinter(cmd.ErrOrStderr(), runVerbose)
	res, err := svcs.svc.Run(ctx, in, printer.Handle)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out, renderReply(res.Output))
	return nil
}
