package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/zhfix/internal/transcript"
	"github.com/MrWong99/zhfix/pkg/types"
)

var (
	correctJSON    bool
	correctVerbose bool
)

var correctCmd = &cobra.Command{
	Use:   "correct [text...]",
	Short: "Correct transcripts from arguments or stdin",
	Long: `Correct runs one correction pass per argument, or per non-empty stdin
line when no arguments are given, and prints the corrected text.`,
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().BoolVar(&correctJSON, "json", false, "print one JSON result per line")
	correctCmd.Flags().BoolVarP(&correctVerbose, "verbose", "v", false, "print every evaluated candidate")
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, _, closeOracle, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	run := func(text string) error {
		res, err := engine.Correct(ctx, types.Transcript{Text: text, IsFinal: true})
		if err != nil {
			return err
		}
		if correctJSON {
			return writeCorrectionJSON(out, res)
		}
		fmt.Fprintln(out, res.Corrected)
		if correctVerbose {
			printDecisions(out, res)
		}
		return nil
	}

	if len(args) > 0 {
		for _, a := range args {
			if err := run(a); err != nil {
				return err
			}
		}
		return nil
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := run(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// correctionLine is the --json output record. Scores that JSON cannot encode
// are dropped.
type correctionLine struct {
	Original        string                  `json:"original"`
	Corrected       string                  `json:"corrected"`
	Corrections     []transcript.Correction `json:"corrections"`
	SnapshotVersion string                  `json:"snapshot_version"`
	Fallback        bool                    `json:"fallback"`
}

func writeCorrectionJSON(w io.Writer, res *transcript.CorrectedTranscript) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(correctionLine{
		Original:        res.Original.Text,
		Corrected:       res.Corrected,
		Corrections:     res.Corrections,
		SnapshotVersion: res.SnapshotVersion,
		Fallback:        res.Fallback,
	})
}

func printDecisions(w io.Writer, res *transcript.CorrectedTranscript) {
	for _, d := range res.Decisions {
		ctxScore := "n/a"
		if d.ContextualErr == nil {
			ctxScore = fmt.Sprintf("%+.3f", d.Contextual)
		}
		fmt.Fprintf(w, "  @%d %s→%s  freq %+.3f  ctx %s  %s\n",
			d.Offset, d.Original, d.Candidate, d.Frequency, ctxScore, d.Decision)
	}
	if res.Fallback {
		fmt.Fprintln(w, "  (oracle unavailable, frequency fallback used)")
	}
}
