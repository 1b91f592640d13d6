package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/transcript/lexicon"
)

var (
	buildOut        string
	buildCorpusFile string
	buildCorpusURL  string
	buildBoostFile  string
	buildCacheDir   string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the knowledge snapshot",
	Long: `Build writes char_pinyin.json, pinyin_chars.json, word_freq.tsv,
bigram_freq.tsv and manifest.json. The jieba dict.txt.big corpus is downloaded
into the cache directory unless a local corpus file is given, converted to
Traditional Chinese with Taiwan phrasing, and merged with the built-in Taiwan
boost table plus an optional boost TSV.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output directory (default: data.snapshot_dir)")
	buildCmd.Flags().StringVar(&buildCorpusFile, "corpus-file", "", "local corpus file, skips the download")
	buildCmd.Flags().StringVar(&buildCorpusURL, "corpus-url", "", "corpus download URL (default: build.corpus_url)")
	buildCmd.Flags().StringVar(&buildBoostFile, "boosts", "", "extra boost TSV merged over the built-in table")
	buildCmd.Flags().StringVar(&buildCacheDir, "cache-dir", "", "download cache directory (default: build.cache_dir)")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b := cfg.Build
	if buildCorpusFile != "" {
		b.CorpusFile = buildCorpusFile
	}
	if buildCorpusURL != "" {
		b.CorpusURL = buildCorpusURL
	}
	if buildBoostFile != "" {
		b.BoostFile = buildBoostFile
	}
	if buildCacheDir != "" {
		b.CacheDir = buildCacheDir
	}
	out := cfg.Data.SnapshotDir
	if buildOut != "" {
		out = buildOut
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var corpus knowledge.CorpusSource
	if b.CorpusFile != "" {
		corpus = knowledge.CorpusFile(b.CorpusFile)
	} else {
		corpus = lexicon.NewFetcher(b.CacheDir, lexicon.WithCorpusURL(b.CorpusURL))
	}

	conv, err := lexicon.NewOpenCC(b.Conversion)
	if err != nil {
		return err
	}

	boosts := lexicon.TaiwanBoosts
	if b.BoostFile != "" {
		f, err := os.Open(b.BoostFile)
		if err != nil {
			return fmt.Errorf("open boost file: %w", err)
		}
		boosts, err = lexicon.LoadBoosts(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("boost file %q: %w", b.BoostFile, err)
		}
	}

	snap, err := knowledge.NewBuilder(
		knowledge.WithCorpus(corpus),
		knowledge.WithConverter(conv),
		knowledge.WithBoosts(boosts),
	).Build(ctx)
	if err != nil {
		return err
	}

	for _, f := range knowledge.Validate(snap, knowledge.DefaultChecks) {
		if !f.OK {
			slog.Warn("snapshot check failed", "wrong", f.Check.Wrong, "right", f.Check.Right, "reason", f.Message)
		}
	}

	if err := knowledge.WriteDir(out, snap); err != nil {
		return err
	}
	m := snap.Manifest()
	fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s written to %s (%d chars, %d groups, %d words, %d bigrams)\n",
		m.Version, out, m.Chars, m.Groups, m.Words, m.Bigrams)
	return nil
}
