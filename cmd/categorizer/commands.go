package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orne-app/categorizer/internal/config"
	"github.com/orne-app/categorizer/internal/graph"
	"github.com/orne-app/categorizer/internal/snapshot"
	"github.com/orne-app/categorizer/internal/trainer"
)

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fetch training data, train the models, and export artifacts",
	Long: `Fetch labeled transactions from the web app, train the three
categorizer models (transaction type, PJ categories, PF categories),
and export the inference graphs, vocabulary, label maps, and training
report.

Examples:
  categorizer train
  categorizer train --out ./models/categorizer
  categorizer train --offline
  TRAINING_DATA_URL=http://staging:3000/api/ml/training-data categorizer train`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		offline, _ := cmd.Flags().GetBool("offline")
		out, _ := cmd.Flags().GetString("out")
		url, _ := cmd.Flags().GetString("url")

		logLevel := slog.LevelInfo
		if verbose {
			logLevel = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

		cfg := config.Load()
		cfg.Data.Offline = offline
		if url != "" {
			cfg.Data.URL = url
		}
		if out != "" {
			cfg.Output.Dir = out
			cfg.Data.SnapshotPath = filepath.Join(out, "snapshots.db")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := trainer.Run(ctx, cfg)
		if err != nil {
			return err
		}

		printSuccess("Training complete")
		printStatus("Samples", "%d (%d manual corrections)", report.TotalSamples, report.ManualCorrections)
		for _, name := range []string{"tipo", "pj", "pf"} {
			m := report.Models[name]
			if len(m.Classes) > 0 && m.NTrain > 0 {
				printStatus(name, "accuracy %.4f, macro F1 %.4f (%d classes)", m.Accuracy, m.MacroF1, len(m.Classes))
			} else {
				printWarning("%s model skipped (not enough data)", name)
			}
		}
		printStatus("Output", "%s", cfg.Output.Dir)
		return nil
	},
}

func init() {
	trainCmd.Flags().Bool("offline", false, "train from the latest stored snapshot instead of fetching")
	trainCmd.Flags().String("out", "", "output directory for artifacts (default: models/categorizer)")
	trainCmd.Flags().String("url", "", "training data endpoint (overrides config and TRAINING_DATA_URL)")
	trainCmd.Flags().Bool("verbose", false, "enable debug logging")
}

// --- inspect ---

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Summarize an exported graph or pretty-print a JSON artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		if g, err := graph.Load(path); err == nil {
			printStatus("File", "%s", path)
			printStatus("Input width", "%d", g.NumFeatures())
			printStatus("Classes", "%d: %v", len(g.Classes), g.Classes)
			for _, n := range g.Nodes {
				printStatus("Node", "%s %v -> %v", n.Op, n.Input, n.Output)
			}
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

// --- snapshots ---

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored dataset snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := snapshot.Open(db)
		if err != nil {
			return err
		}
		defer store.Close()

		metas, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}
		for _, m := range metas {
			fmt.Printf("%s  %s  %d records (%d manual)  %s\n",
				colorize(colorCyan, m.ID[:8]),
				m.FetchedAt.Format("2006-01-02 15:04:05"),
				m.Total, m.Manual, m.SourceURL,
			)
		}
		return nil
	},
}

func init() {
	snapshotsCmd.Flags().String("db", "models/categorizer/snapshots.db", "snapshot database path")
	snapshotsCmd.Flags().Int("limit", 20, "maximum number of snapshots to list")
}
