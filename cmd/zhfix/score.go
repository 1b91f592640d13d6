package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/zhfix/internal/transcript"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
)

var scoreOffset int

var scoreCmd = &cobra.Command{
	Use:   "score TEXT ORIGINAL CANDIDATE",
	Short: "Compare the frequency and contextual scores of one replacement",
	Long: `Score prints both signals and both verdicts for replacing ORIGINAL, which
must occur in TEXT, with CANDIDATE. Without --offset the first occurrence of
ORIGINAL is used. Use it to calibrate thresholds.`,
	Example: `  zhfix score 今天氣溫很底 很底 很低
  zhfix score --offset 2 我的銀幕很亮 銀幕 螢幕`,
	Args: cobra.ExactArgs(3),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().IntVar(&scoreOffset, "offset", -1, "rune offset of ORIGINAL in TEXT")
}

func runScore(cmd *cobra.Command, args []string) error {
	text, original, cand := args[0], args[1], args[2]
	offset := scoreOffset
	if offset < 0 {
		offset = runeIndex(norm.NFC.String(text), norm.NFC.String(original))
		if offset < 0 {
			return fmt.Errorf("%q does not occur in %q", original, text)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, _, closeOracle, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	r, err := engine.Score(context.Background(), text, offset, original, cand)
	if err != nil {
		return err
	}
	printScoreReport(cmd.OutOrStdout(), r)
	return nil
}

// runeIndex returns the rune offset of the first occurrence of sub in s, or
// -1.
func runeIndex(s, sub string) int {
	i := strings.Index(s, sub)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:i])
}

func printScoreReport(w io.Writer, r *transcript.ScoreReport) {
	fmt.Fprintf(w, "text:        %s\n", r.Text)
	fmt.Fprintf(w, "replacement: %s → %s at %d (positions %v, class %s)\n",
		r.Original, r.Candidate, r.Offset, r.Positions, r.Class)
	fmt.Fprintf(w, "snapshot:    %s\n\n", r.SnapshotVersion)

	fmt.Fprintf(w, "frequency:   %+8.3f  %s\n", r.Frequency, verdictLine(r.FrequencyDecision))
	if r.ContextualErr != nil {
		fmt.Fprintf(w, "contextual:  unavailable (%v)\n", r.ContextualErr)
	} else {
		fmt.Fprintf(w, "contextual:  %+8.3f  %s\n", r.Contextual, verdictLine(*r.ContextualDecision))
	}
	fmt.Fprintf(w, "\ndecision:    %s\n", r.Decision())
}

func verdictLine(d policy.Decision) string {
	return fmt.Sprintf("%s (threshold %.1f)", d.Verdict, d.Threshold)
}
