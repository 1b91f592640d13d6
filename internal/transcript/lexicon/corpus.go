package lexicon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// ErrCorpusUnavailable marks a build that could not obtain its corpus. A build
// failing with this error must not write any output.
var ErrCorpusUnavailable = errors.New("lexicon: corpus unavailable")

// DefaultCorpusURL is the jieba big dictionary.
const DefaultCorpusURL = "https://raw.githubusercontent.com/fxsjy/jieba/master/extra_dict/dict.txt.big"

// corpusCacheName is the file name used inside the cache directory.
const corpusCacheName = "dict.txt.big"

// Fetcher downloads the corpus on first use and serves it from a cache
// directory afterwards.
type Fetcher struct {
	client   *http.Client
	url      string
	cacheDir string
}

// FetcherOption configures a [Fetcher].
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client. Default: [http.DefaultClient].
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithCorpusURL overrides the download URL. Default: [DefaultCorpusURL].
func WithCorpusURL(url string) FetcherOption {
	return func(f *Fetcher) {
		if url != "" {
			f.url = url
		}
	}
}

// NewFetcher returns a [Fetcher] caching into cacheDir.
func NewFetcher(cacheDir string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		url:      DefaultCorpusURL,
		cacheDir: cacheDir,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Path returns the location of the cached corpus file.
func (f *Fetcher) Path() string {
	return filepath.Join(f.cacheDir, corpusCacheName)
}

// Fetch returns the path of the local corpus file, downloading it when the
// cache is empty. The download is written to a temporary file and renamed
// into place so an interrupted download never leaves a truncated cache entry.
// Every failure is wrapped with [ErrCorpusUnavailable].
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	path := f.Path()
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		slog.Info("using cached corpus", "path", path)
		return path, nil
	}

	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create cache dir: %v", ErrCorpusUnavailable, err)
	}

	slog.Info("downloading corpus", "url", f.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: GET %s: status %d", ErrCorpusUnavailable, f.url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.cacheDir, corpusCacheName+".*.part")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: download: %v", ErrCorpusUnavailable, err)
	}
	if n == 0 {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: empty response from %s", ErrCorpusUnavailable, f.url)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrCorpusUnavailable, err)
	}
	slog.Info("corpus cached", "path", path, "bytes", n)
	return path, nil
}
