package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aluiziolira/saturday-punter/bot"
	"github.com/aluiziolira/saturday-punter/notify"
	"github.com/aluiziolira/saturday-punter/pipeline"
	"github.com/spf13/cobra"
)

func newDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Log in to System Builder and download the latest selections export.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.newBot()
			if err != nil {
				return err
			}
			result := b.Run(cmd.Context())
			renderDownload(cmd.OutOrStdout(), result)
			if !result.OK() {
				return errors.New("download failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Path)
			return nil
		},
	}
}

func newProcessCmd(a *app) *cobra.Command {
	var (
		outputFile   string
		outputFormat string
		top          int
	)
	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Clean a selections export; defaults to the newest export in the download path.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				latest, err := pipeline.LatestExport(a.cfg.DownloadPath)
				if err != nil {
					return err
				}
				a.logger.Info("using latest export", slog.String("path", latest))
				path = latest
			}

			p := a.newPipeline()
			set, err := p.ProcessFile(path)
			if err != nil {
				return err
			}
			renderSelections(cmd.OutOrStdout(), set, top, p.GetMetrics())

			format, file := a.cfg.OutputFormat, a.cfg.OutputFile
			if outputFormat != "" {
				format = outputFormat
			}
			if outputFile != "" {
				file = outputFile
			}
			if format == "" {
				return nil
			}
			w, err := pipeline.NewWriter(format, file)
			if err != nil {
				return err
			}
			if err := pipeline.WriteSet(w, set); err != nil {
				return fmt.Errorf("write cleaned output: %w", err)
			}
			a.logger.Info("cleaned output written", slog.String("status", "ok"), slog.String("path", file))
			return nil
		},
	}
	cmd.Flags().StringVar(&outputFile, "output", "", "Cleaned output path (overrides the config)")
	cmd.Flags().StringVar(&outputFormat, "format", "", "Output format: csv, json, or dual (overrides the config)")
	cmd.Flags().IntVar(&top, "top", 10, "Number of runners to print")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var skipProbe bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full workflow once: preflight, download, process and notify.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.newBot()
			if err != nil {
				return err
			}
			prober := a.newProber()
			if skipProbe {
				prober = nil
			}
			summary, err := a.newWorkflow(b, prober).Run(cmd.Context())
			renderSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Skip the preflight HTTP check")
	return cmd
}

func newScanDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-dump <file.html>",
		Short: "Rank export candidates found in a saved page dump.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open dump: %w", err)
			}
			defer f.Close()

			ranked, nearMisses, err := bot.ScanHTML(f)
			if err != nil {
				return err
			}
			renderCandidates(cmd.OutOrStdout(), ranked, nearMisses)
			if _, ok := bot.SelectBest(ranked); !ok {
				return errors.New("no export candidate in dump")
			}
			return nil
		},
	}
}

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the System Builder login page is reachable and intact.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.newProber()
			if p == nil {
				return errors.New("system builder URL cannot be probed")
			}
			report := p.Check(cmd.Context())
			renderProbe(cmd.OutOrStdout(), report)
			if !report.Healthy() {
				return errors.New("preflight check failed")
			}
			return nil
		},
	}
}

func newNotifyTestCmd(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send the simulation email to check the mail setup.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, body, err := notify.SimulationEmail(a.cfg.DashboardURL)
			if err != nil {
				return err
			}
			if err := a.newNotifier().Send(cmd.Context(), subject, body, to); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "simulation email sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient (defaults to chooser_email)")
	return cmd
}
