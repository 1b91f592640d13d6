package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/transcript/phonetic"
)

var lookupGroupLimit int

var lookupCmd = &cobra.Command{
	Use:   "lookup WORD...",
	Short: "Show readings, homophone groups and frequencies from the snapshot",
	Example: `  zhfix lookup 底
  zhfix lookup 捷運 邊視`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().IntVar(&lookupGroupLimit, "group-limit", 12, "homophones listed per reading, 0 for all")
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	snap, err := knowledge.LoadDir(cfg.Data.SnapshotDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "snapshot %s\n", snap.Version())
	for _, w := range args {
		fmt.Fprintln(out)
		printLookup(out, snap, w)
	}
	return nil
}

func printLookup(w io.Writer, snap *knowledge.Snapshot, word string) {
	runes := []rune(word)
	if f, ok := snap.Words.Lookup(word); ok {
		fmt.Fprintf(w, "%s  freq %d\n", word, f)
	} else {
		fmt.Fprintf(w, "%s  not in word frequencies\n", word)
	}
	if len(runes) == 2 {
		fmt.Fprintf(w, "  bigram %d\n", snap.Bigrams.Freq(runes[0], runes[1]))
	}

	for _, c := range runes {
		readings, err := snap.Index.Readings(c)
		if errors.Is(err, phonetic.ErrMissingEntry) {
			fmt.Fprintf(w, "  %c  no reading\n", c)
			continue
		}
		fmt.Fprintf(w, "  %c  %s\n", c, strings.Join(readings, " "))
		for _, base := range snap.Index.Bases(c) {
			fmt.Fprintf(w, "     %-6s %s\n", base, homophones(snap, base, c))
		}
	}
}

// homophones lists the other characters of a reading group, most frequent
// first.
func homophones(snap *knowledge.Snapshot, base string, self rune) string {
	group := slices.DeleteFunc(slices.Clone(snap.Index.Group(base)), func(r rune) bool { return r == self })
	slices.SortStableFunc(group, func(a, b rune) int {
		return cmp.Compare(snap.Words.Freq(string(b)), snap.Words.Freq(string(a)))
	})
	more := 0
	if lookupGroupLimit > 0 && len(group) > lookupGroupLimit {
		more = len(group) - lookupGroupLimit
		group = group[:lookupGroupLimit]
	}
	s := string(group)
	if more > 0 {
		s += fmt.Sprintf(" (+%d)", more)
	}
	return s
}
