package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/zhfix/internal/config"
	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/pkg/history"
	"github.com/MrWong99/zhfix/pkg/history/postgres"
	"github.com/MrWong99/zhfix/pkg/history/sqlite"
)

var (
	validateSQLite   string
	validatePostgres string
	validateSince    time.Duration
	validateSession  string
	validateLimit    int
	validateTop      int
	validateJSON     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit stored transcripts: naive rule vs. segmentation-aware detector",
	Long: `Validate reads stored transcripts and lists the low-frequency words the
frequency-only rule would flag, with how many occurrences the
segmentation-aware detector still flags. Words whose occurrences drop to zero
are trusted compounds such as 捷運 and no longer cost an oracle call.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateSQLite, "sqlite", "", "host transcription store (default: history.sqlite_path)")
	validateCmd.Flags().StringVar(&validatePostgres, "postgres", "", "PostgreSQL DSN (default: history.postgres_dsn)")
	validateCmd.Flags().DurationVar(&validateSince, "since", 0, "only audit entries newer than this, e.g. 720h")
	validateCmd.Flags().StringVar(&validateSession, "session", "", "restrict to one session (postgres only)")
	validateCmd.Flags().IntVar(&validateLimit, "limit", 0, "maximum number of entries")
	validateCmd.Flags().IntVar(&validateTop, "top", 30, "rows to print, 0 for all")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the full report as JSON")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	h := cfg.History
	if validateSQLite != "" || validatePostgres != "" {
		h = config.HistoryConfig{SQLitePath: validateSQLite, PostgresDSN: validatePostgres}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, h)
	if err != nil {
		return err
	}
	defer src.Close()

	q := history.Query{SessionID: validateSession, Limit: validateLimit}
	if validateSince > 0 {
		q.Since = time.Now().Add(-validateSince)
	}
	entries, err := src.Entries(ctx, q)
	if err != nil {
		return err
	}
	slog.Info("history loaded", "entries", len(entries))

	snap, err := knowledge.LoadDir(cfg.Data.SnapshotDir)
	if err != nil {
		return err
	}
	audit := detect.NewAudit(detect.New(snap.Words, snap.Segmenter, cfg.Detector.Options()...))
	for _, e := range entries {
		audit.Add(e.ASRText())
	}
	report := audit.Report()

	if validateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printAudit(cmd.OutOrStdout(), report, validateTop)
	return nil
}

func openSource(ctx context.Context, h config.HistoryConfig) (history.Source, error) {
	switch {
	case h.SQLitePath != "" && h.PostgresDSN != "":
		return nil, errors.New("choose one history source: --sqlite or --postgres")
	case h.SQLitePath != "":
		s, err := sqlite.Open(ctx, h.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case h.PostgresDSN != "":
		s, err := postgres.NewStore(ctx, h.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New("no history source: set --sqlite, --postgres or the history config section")
	}
}

func printAudit(w io.Writer, r detect.AuditReport, top int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "word\tfreq\tnaive\tdetector\ttrusted\t")
	for i, row := range r.Rows {
		if top > 0 && i == top {
			break
		}
		trusted := ""
		if row.StillFlagged == 0 {
			trusted = "✓"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t\n", row.Word, row.Freq, row.Occurrences, row.StillFlagged, trusted)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nrecords audited:    %d\n", r.Records)
	fmt.Fprintf(w, "records affected:   %d\n", r.Affected)
	fmt.Fprintf(w, "naive flags:        %d\n", r.Occurrences())
	fmt.Fprintf(w, "eliminated flags:   %d\n", r.Eliminated())
	if top > 0 && len(r.Rows) > top {
		fmt.Fprintf(w, "(%d more words, use --top 0 to list all)\n", len(r.Rows)-top)
	}
}
