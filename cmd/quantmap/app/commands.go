package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/quantmap/quantmap/pkg/catalogs"
	"github.com/quantmap/quantmap/pkg/errors"
	"github.com/quantmap/quantmap/pkg/syncer"
)

// NewSyncCommand creates the sync command.
func (a *App) NewSyncCommand() *cobra.Command {
	var (
		mode          string
		forceFull     bool
		dryRun        bool
		baseURL       string
		rps           int
		maxConcurrent int
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync against the hub",
		Long: `Sync discovers models through the configured strategies, fetches
their metadata, and commits the merged result. In auto mode the engine
decides between an incremental and a full pass based on the previous
run's state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != "" {
				a.config.Mode = mode
			}
			if forceFull {
				a.config.ForceFull = true
			}
			if dryRun {
				a.config.DryRun = true
			}
			if baseURL != "" {
				a.config.HubURL = baseURL
			}
			if rps > 0 {
				a.config.RequestsPerSecond = rps
			}
			if maxConcurrent > 0 {
				a.config.MaxConcurrent = maxConcurrent
			}

			qm, err := a.Quantmap()
			if err != nil {
				return err
			}
			report, err := qm.Sync(cmd.Context())
			if report != nil {
				if perr := a.printReport(cmd, report); perr != nil && err == nil {
					err = perr
				}
			}
			if err != nil {
				return err
			}
			if report != nil && !report.Committed() {
				return errors.New("sync rolled back: " + report.RollbackReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "sync mode: auto, incremental, full")
	cmd.Flags().BoolVar(&forceFull, "force-full", false, "force a full sync regardless of mode")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without writing the snapshot or state")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "hub base URL override")
	cmd.Flags().IntVar(&rps, "rps", 0, "requests per second against the hub")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum concurrent hub requests")
	return cmd
}

// NewCatalogCommand creates the catalog command with its subcommands.
func (a *App) NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the local catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.newCatalogListCommand())
	cmd.AddCommand(a.newCatalogShowCommand())
	return cmd
}

func (a *App) newCatalogListCommand() *cobra.Command {
	var (
		architecture string
		quantization string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.Catalog()
			if err != nil {
				return err
			}
			models := cat.List()
			models = filterModels(models, architecture, quantization)
			return a.printModels(cmd, models)
		},
	}
	cmd.Flags().StringVar(&architecture, "architecture", "", "filter by architecture")
	cmd.Flags().StringVar(&quantization, "quantization", "", "filter by quantization, e.g. Q4_K_M")
	return cmd
}

func (a *App) newCatalogShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <model-id>",
		Short: "Show one model's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.Catalog()
			if err != nil {
				return err
			}
			model, ok := cat.Get(args[0])
			if !ok {
				return errors.New("model not found: " + args[0])
			}
			return printYAML(cmd, model)
		},
	}
}

// NewWatchCommand creates the watch command, which syncs periodically
// until interrupted.
func (a *App) NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			qm, err := a.Quantmap()
			if err != nil {
				return err
			}
			// Run once immediately; the ticker covers the rest.
			if _, err := qm.Sync(cmd.Context()); err != nil {
				a.logger.Error().Err(err).Msg("Initial sync failed")
			}
			if err := qm.AutoSyncOn(); err != nil {
				return err
			}
			a.logger.Info().
				Dur("interval", a.config.AutoSyncInterval).
				Msg("Watching for catalog changes")

			<-cmd.Context().Done()
			return qm.AutoSyncOff()
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("quantmap %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit: %s\n", a.commit)
				cmd.Printf("  built:  %s\n", a.date)
			}
		},
	}
}

// printReport renders a sync report in the configured format.
func (a *App) printReport(cmd *cobra.Command, report *syncer.Report) error {
	switch a.config.Format {
	case "json":
		return printJSON(cmd, report)
	case "yaml":
		return printYAML(cmd, report)
	default:
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "run\t%s\n", report.RunID)
		fmt.Fprintf(w, "mode\t%s (%s)\n", report.Mode, report.ModeNote)
		fmt.Fprintf(w, "decision\t%s\n", report.Decision)
		if report.RollbackReason != "" {
			fmt.Fprintf(w, "reason\t%s\n", report.RollbackReason)
		}
		fmt.Fprintf(w, "discovered\t%d\n", report.Discovered)
		fmt.Fprintf(w, "fetched\t%d\n", report.Fetched)
		fmt.Fprintf(w, "reused\t%d\n", report.Reused)
		fmt.Fprintf(w, "failed\t%d\n", report.Failed)
		fmt.Fprintf(w, "records\t%d\n", report.Records)
		fmt.Fprintf(w, "completeness\t%.2f\n", report.Completeness)
		fmt.Fprintf(w, "quality\t%.2f\n", report.Quality)
		fmt.Fprintf(w, "change ratio\t%.2f\n", report.ChangeRatio)
		fmt.Fprintf(w, "elapsed\t%s\n", report.Elapsed)
		return w.Flush()
	}
}

// printModels renders a model list in the configured format.
func (a *App) printModels(cmd *cobra.Command, models []catalogs.Model) error {
	switch a.config.Format {
	case "json":
		return printJSON(cmd, models)
	case "yaml":
		return printYAML(cmd, models)
	default:
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tARCH\tQUANTIZATIONS\tSIZE\tCOMPLETENESS")
		for _, m := range models {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n",
				m.ID, m.Architecture,
				strings.Join(m.Quantizations(), ","),
				formatBytes(m.TotalSizeBytes),
				m.Completeness)
		}
		return w.Flush()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(cmd *cobra.Command, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// filterModels applies the list command's filters.
func filterModels(models []catalogs.Model, architecture, quantization string) []catalogs.Model {
	if architecture == "" && quantization == "" {
		return models
	}
	out := models[:0:0]
	for _, m := range models {
		if architecture != "" && !strings.EqualFold(m.Architecture, architecture) {
			continue
		}
		if quantization != "" && !hasQuantization(&m, quantization) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func hasQuantization(m *catalogs.Model, quant string) bool {
	for _, q := range m.Quantizations() {
		if strings.EqualFold(q, quant) {
			return true
		}
	}
	return false
}

// formatBytes renders a byte count in human units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
