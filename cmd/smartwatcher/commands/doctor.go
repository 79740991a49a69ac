package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/biodoia/smartwatcher/internal/tools"
	"github.com/biodoia/smartwatcher/internal/watcher"
	"github.com/biodoia/smartwatcher/pkg/cache"
	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/spf13/cobra"
)

// DoctorCmd rappresenta il comando doctor
var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that SmartWatcher is ready to run",
	Long: `Run local checks on the configuration: agent catalogue, model backend,
credentials, style guidelines and search cache. No model call is made.`,
	Example: `  smartwatcher doctor
  smartwatcher doctor --check cache`,
	RunE: runDoctor,
}

var doctorCheck string

func init() {
	DoctorCmd.Flags().StringVar(&doctorCheck, "check", "", "Run a single check (personas, backend, credentials, guidelines, cache)")
}

type doctorStep struct {
	name string
	run  func(cfg *config.Config, out io.Writer) error
}

var doctorSteps = []doctorStep{
	{"personas", checkPersonas},
	{"backend", checkBackend},
	{"credentials", checkCredentials},
	{"guidelines", checkGuidelines},
	{"cache", checkCache},
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return doctor(cfg, cmd.OutOrStdout(), doctorCheck)
}

// doctor esegue i controlli e stampa un riepilogo
func doctor(cfg *config.Config, out io.Writer, only string) error {
	fmt.Fprintln(out, titleStyle.Render("SmartWatcher Health Check"))
	fmt.Fprintln(out)

	failed := 0
	ran := 0
	for _, step := range doctorSteps {
		if only != "" && step.name != only {
			continue
		}
		ran++

		if err := step.run(cfg, out); err != nil {
			failed++
			fmt.Fprintf(out, "%-12s %s\n", step.name+":", errorStyle.Render("✗ "+err.Error()))
		} else {
			fmt.Fprintf(out, "%-12s %s\n", step.name+":", successStyle.Render("✓ ok"))
		}
	}

	if ran == 0 {
		return fmt.Errorf("unknown check: %s", only)
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, ran)
	}
	fmt.Fprintln(out, successStyle.Render("All checks passed"))
	return nil
}

func checkPersonas(cfg *config.Config, out io.Writer) error {
	catalog, err := persona.Load(cfg.Personas.File)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s\n", mutedStyle.Render(fmt.Sprintf("%d agents: %v", catalog.Len(), catalog.IDs())))
	return nil
}

func checkBackend(cfg *config.Config, out io.Writer) error {
	ref, err := providers.ParseModelRef(cfg.LLM.Model)
	if err != nil {
		return err
	}
	for _, name := range watcher.DefaultRegistry().List() {
		if name == ref.Provider {
			fmt.Fprintf(out, "  %s\n", mutedStyle.Render("provider "+ref.Provider+", model "+ref.Model))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", providers.ErrProviderNotFound, ref.Provider)
}

func checkCredentials(cfg *config.Config, out io.Writer) error {
	var errs []error
	if cfg.LLM.APIKey == "" {
		errs = append(errs, errors.New("model credential missing ("+config.EnvPrefix+"_LLM_API_KEY)"))
	}
	if cfg.Search.APIKey == "" {
		// Only agents that search need it, so this is a warning.
		fmt.Fprintf(out, "  %s\n", mutedStyle.Render("search credential missing: agents with web search cannot run"))
	}
	return errors.Join(errs...)
}

func checkGuidelines(cfg *config.Config, out io.Writer) error {
	doc, err := tools.NewDocumentTool(cfg.Documents.BaseDir, cfg.Documents.GuidelinesPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := doc.Execute(ctx, map[string]any{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s\n", mutedStyle.Render(fmt.Sprintf("%s (%d bytes)", cfg.Documents.GuidelinesPath, len(text))))
	return nil
}

func checkCache(cfg *config.Config, out io.Writer) error {
	if cfg.Cache.Backend != "redis" {
		fmt.Fprintf(out, "  %s\n", mutedStyle.Render(fmt.Sprintf("in-memory, %d entries", cfg.Cache.MaxEntries)))
		return nil
	}

	rc, err := cache.NewRedisCache(cfg.Cache.Redis.Host, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.Redis.KeyPrefix, cfg.Search.CacheTTL)
	if err != nil {
		return err
	}
	defer rc.Close()

	fmt.Fprintf(out, "  %s\n", mutedStyle.Render("redis at "+cfg.Cache.Redis.Host))
	return nil
}
