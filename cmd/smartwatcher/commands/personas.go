package commands

import (
	"fmt"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// PersonasCmd rappresenta il comando personas
var PersonasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the available agents",
	Long: `List the agent catalogue in definition order. With --yaml the catalogue
is printed in the personas file format, ready to be customised.`,
	Example: `  smartwatcher personas
  smartwatcher personas --yaml > configs/personas.yaml`,
	RunE: runPersonas,
}

var personasYAML bool

func init() {
	PersonasCmd.Flags().BoolVar(&personasYAML, "yaml", false, "Print the catalogue as YAML")
}

func runPersonas(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	catalog, err := persona.Load(cfg.Personas.File)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if personasYAML {
		data, err := yaml.Marshal(map[string]any{"personas": catalog.All()})
		if err != nil {
			return fmt.Errorf("failed to marshal personas: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	for _, p := range catalog.All() {
		var caps []string
		if p.NeedsSearch {
			caps = append(caps, "web search")
		}
		if p.NeedsGuidelines {
			caps = append(caps, "guidelines")
		}

		fmt.Fprintf(out, "%s %s\n", stepStyle.Render(p.ID), p.Role)
		fmt.Fprintf(out, "    %s\n", mutedStyle.Render(p.Goal))
		if len(caps) > 0 {
			fmt.Fprintf(out, "    %s %v\n", mutedStyle.Render("tools:"), caps)
		}
	}
	return nil
}
