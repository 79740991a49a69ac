package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/spf13/cobra"
)

// CritiqueCmd rappresenta il comando critique
var CritiqueCmd = &cobra.Command{
	Use:   "critique",
	Short: "Ask the advisor whether an agent ordering makes sense",
	Long: `Send the post and the chosen agent ordering to the advisor and print
its verdict. Nothing is executed and no web search is performed.`,
	Example: `  smartwatcher critique --agents pr_writer,researcher`,
	RunE:    runCritique,
}

var (
	critiquePost     string
	critiquePostFile string
	critiqueAgents   []string
	critiqueJSON     bool
)

func init() {
	CritiqueCmd.Flags().StringVarP(&critiquePost, "post", "p", "", "Post text (defaults to ui.default_post)")
	CritiqueCmd.Flags().StringVar(&critiquePostFile, "post-file", "", "Read the post from a file, or - for stdin")
	CritiqueCmd.Flags().StringSliceVarP(&critiqueAgents, "agents", "a", []string{persona.Researcher, persona.PRWriter}, "Ordered, comma-separated agent ids")
	CritiqueCmd.Flags().BoolVar(&critiqueJSON, "json", false, "Print the critique as JSON")
}

func runCritique(cmd *cobra.Command, args []string) error {
	svcs, err := bootstrap(cmd, "warn")
	if err != nil {
		return err
	}
	defer svcs.Close()

	in, err := readInput(svcs.cfg, critiquePost, critiquePostFile, critiqueAgents, cmd.InOrStdin())
	if err != nil {
		return err
	}

	c, err := svcs.svc.Critique(context.Background(), in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if critiqueJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Fprintln(out, renderCritique(c))
	return nil
}
