package transcript

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/observe"
	"github.com/MrWong99/zhfix/internal/transcript/candidate"
	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
	"github.com/MrWong99/zhfix/internal/transcript/scorer"
	"github.com/MrWong99/zhfix/pkg/provider/mlm"
	"github.com/MrWong99/zhfix/pkg/types"
)

const defaultConcurrency = 8

var (
	// ErrNoSnapshot is returned when no knowledge snapshot has been loaded.
	ErrNoSnapshot = errors.New("transcript: no knowledge snapshot loaded")

	// ErrOffsetMismatch is returned by [Engine.Score] when the original word
	// does not occur at the given offset.
	ErrOffsetMismatch = errors.New("transcript: original not found at offset")
)

// SnapshotSource yields the current knowledge snapshot, or nil when none is
// loaded. [knowledge.Holder] implements it.
type SnapshotSource interface {
	Load() *knowledge.Snapshot
}

// EngineOption is a functional option for configuring an [Engine].
type EngineOption func(*Engine)

// WithOracle sets the masked-LM oracle. When nil (the default) every
// candidate is decided on the frequency signal under the fallback threshold.
func WithOracle(p mlm.Provider) EngineOption {
	return func(e *Engine) {
		e.oracle = p
	}
}

// WithPolicyOptions passes options through to the per-pass [policy.Policy].
func WithPolicyOptions(opts ...policy.Option) EngineOption {
	return func(e *Engine) {
		e.policyOpts = append(e.policyOpts, opts...)
	}
}

// WithSyllableRule enables classifying pairs whose toneless readings differ
// only by a trailing "g" as nasal, in addition to the curated pairs.
// Default: true.
func WithSyllableRule(on bool) EngineOption {
	return func(e *Engine) {
		e.syllableRule = on
	}
}

// WithDetectorOptions passes options through to the per-pass
// [detect.Detector].
func WithDetectorOptions(opts ...detect.Option) EngineOption {
	return func(e *Engine) {
		e.detectOpts = append(e.detectOpts, opts...)
	}
}

// WithCandidateOptions passes options through to the per-pass
// [candidate.Generator].
func WithCandidateOptions(opts ...candidate.Option) EngineOption {
	return func(e *Engine) {
		e.candidateOpts = append(e.candidateOpts, opts...)
	}
}

// WithConcurrency bounds the number of spans scored in parallel. Default: 8.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine is the [Pipeline] implementation. It holds no per-pass state: every
// call loads the current snapshot once and builds its detector, generator,
// and policy from it, so a snapshot swap never affects a running pass.
//
// Engine is safe for concurrent use.
type Engine struct {
	snapshots     SnapshotSource
	oracle        mlm.Provider
	policyOpts    []policy.Option
	syllableRule  bool
	detectOpts    []detect.Option
	candidateOpts []candidate.Option
	concurrency   int
	metrics       *observe.Metrics
}

// Ensure Engine satisfies the Pipeline interface at compile time.
var _ Pipeline = (*Engine)(nil)

// NewEngine constructs an [Engine] reading snapshots from snapshots.
func NewEngine(snapshots SnapshotSource, opts ...EngineOption) *Engine {
	e := &Engine{
		snapshots:    snapshots,
		syllableRule: true,
		concurrency:  defaultConcurrency,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// pass bundles the components bound to one snapshot and one text.
type pass struct {
	snap     *knowledge.Snapshot
	detector *detect.Detector
	gen      *candidate.Generator
	policy   *policy.Policy
	scorer   *scorer.Scorer
	session  *scorer.Session
}

func (e *Engine) newPass(snap *knowledge.Snapshot, text string) *pass {
	popts := slices.Clone(e.policyOpts)
	if e.syllableRule {
		popts = append(popts, policy.WithSyllableRule(snap.Index))
	}
	sc := scorer.New(snap.Words, e.oracle)
	return &pass{
		snap:     snap,
		detector: detect.New(snap.Words, snap.Segmenter, e.detectOpts...),
		gen:      candidate.New(snap.Index, e.candidateOpts...),
		policy:   policy.New(popts...),
		scorer:   sc,
		session:  sc.NewSession(text),
	}
}

// Correct runs one correction pass over t.
//
// Detection and scoring run on the NFC form of the text, which folds CJK
// compatibility ideographs into their unified forms and keeps full-width
// punctuation. Offsets in the result refer to that normalised text. The
// corrected text is the original with only the replaced words rewritten; a
// pass that accepts nothing returns t.Text byte for byte.
func (e *Engine) Correct(ctx context.Context, t types.Transcript) (*CorrectedTranscript, error) {
	if !t.IsFinal {
		return &CorrectedTranscript{
			Original:    t,
			Corrected:   t.Text,
			Corrections: []Correction{},
		}, nil
	}
	snap := e.snapshots.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}

	ctx, span := observe.StartSpan(ctx, "transcript.correct",
		trace.WithAttributes(observe.SnapshotVersionKey.String(snap.Version())),
	)
	defer span.End()
	start := time.Now()

	nt := normalize(t.Text)
	text := nt.text
	p := e.newPass(snap, text)
	spans := p.detector.Detect(text)
	span.SetAttributes(attribute.Int("spans", len(spans)))

	results := make([][]CandidateDecision, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sp := range spans {
		g.Go(func() error {
			ds, err := e.evaluate(gctx, p, sp)
			if err != nil {
				return err
			}
			results[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "correction abandoned")
		return nil, fmt.Errorf("transcript: correct: %w", err)
	}

	out := &CorrectedTranscript{
		Original:        t,
		Corrections:     []Correction{},
		Spans:           spans,
		SnapshotVersion: snap.Version(),
	}
	for _, ds := range results {
		out.Decisions = append(out.Decisions, ds...)
	}
	for _, d := range out.Decisions {
		if d.Decision.Source == policy.SourceFrequency {
			out.Fallback = true
			break
		}
	}

	selected := selectCorrections(results)
	for _, d := range selected {
		out.Corrections = append(out.Corrections, Correction{
			Offset:    d.Offset,
			Original:  d.Original,
			Corrected: d.Candidate,
			Score:     d.Decision.Score,
			Class:     d.Decision.Class,
			Method:    string(d.Decision.Source),
		})
	}
	out.Corrected = nt.apply(selected)

	elapsed := time.Since(start)
	e.metrics.RecordCorrection(ctx, len(spans), len(out.Corrections), out.Fallback, elapsed.Seconds())
	span.SetAttributes(attribute.Int("corrections", len(out.Corrections)))
	if len(out.Corrections) > 0 {
		observe.Logger(ctx).Info("transcript corrected",
			"original", t.Text,
			"corrected", out.Corrected,
			"corrections", len(out.Corrections),
			"fallback", out.Fallback,
			"duration", elapsed,
		)
	}
	return out, nil
}

// evaluate decides every candidate of sp. It fails only when ctx is done.
func (e *Engine) evaluate(ctx context.Context, p *pass, sp detect.Span) ([]CandidateDecision, error) {
	cands := p.gen.Generate(sp)
	out := make([]CandidateDecision, 0, len(cands))
	var oracleErr error

	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := CandidateDecision{
			Offset:    c.Offset,
			Original:  c.Original,
			Candidate: c.Word,
			Position:  c.Position,
			Frequency: p.scorer.Frequency(c.Original, c.Word),
		}
		class := p.policy.Classify(c.From, c.To)

		score, err := p.session.Contextual(ctx, c.Offset, c.Original, c.Word)
		switch {
		case err == nil:
			d.Contextual = score
			d.Decision = p.policy.Decide(class, policy.SourceContextual, score)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, scorer.ErrUnscorable):
			d.ContextualErr = err
			d.Decision = policy.Decision{
				Class:     class,
				Source:    policy.SourceContextual,
				Threshold: p.policy.Threshold(class, policy.SourceContextual),
				Verdict:   policy.Reject,
			}
		default:
			d.ContextualErr = err
			if oracleErr == nil {
				oracleErr = err
			}
			d.Decision = p.policy.Decide(class, policy.SourceFrequency, d.Frequency)
		}

		e.metrics.RecordDecision(ctx, string(d.Decision.Class), string(d.Decision.Source), string(d.Decision.Verdict))
		observe.Logger(ctx).Debug("candidate decided",
			"offset", d.Offset,
			"original", d.Original,
			"candidate", d.Candidate,
			"frequency", d.Frequency,
			"decision", d.Decision.String(),
		)
		out = append(out, d)
	}

	if oracleErr != nil {
		observe.Logger(ctx).Warn("oracle unavailable, span decided on frequency",
			"span", sp.Text,
			"offset", sp.Offset,
			"err", oracleErr,
		)
	}
	return out, nil
}

// selectCorrections picks the best accepted candidate of every span and
// drops spans overlapping a better one. Higher scores win; on equal scores
// the earlier, then shorter, span wins. The result is ordered by offset.
func selectCorrections(results [][]CandidateDecision) []CandidateDecision {
	var best []CandidateDecision
	for _, ds := range results {
		pick := -1
		for i, d := range ds {
			if !d.Decision.Accepted() {
				continue
			}
			if pick < 0 || d.Decision.Score > ds[pick].Decision.Score {
				pick = i
			}
		}
		if pick >= 0 {
			best = append(best, ds[pick])
		}
	}

	slices.SortStableFunc(best, func(a, b CandidateDecision) int {
		if c := cmp.Compare(b.Decision.Score, a.Decision.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
			return c
		}
		return cmp.Compare(utf8.RuneCountInString(a.Original), utf8.RuneCountInString(b.Original))
	})

	var chosen []detect.Span
	var out []CandidateDecision
	for _, d := range best {
		s := detect.Span{Text: d.Original, Offset: d.Offset}
		if slices.ContainsFunc(chosen, s.Overlaps) {
			continue
		}
		chosen = append(chosen, s)
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b CandidateDecision) int { return cmp.Compare(a.Offset, b.Offset) })
	return out
}

// ScoreReport compares both signals for one directly supplied word pair.
type ScoreReport struct {
	Text      string `json:"text"`
	Offset    int    `json:"offset"`
	Original  string `json:"original"`
	Candidate string `json:"candidate"`

	// Positions are the differing character indices within the word.
	Positions []int        `json:"positions"`
	Class     policy.Class `json:"class"`

	Frequency         float64         `json:"frequency"`
	FrequencyDecision policy.Decision `json:"frequency_decision"`

	// Contextual and ContextualDecision are valid only when ContextualErr is
	// nil.
	Contextual         float64          `json:"contextual"`
	ContextualDecision *policy.Decision `json:"contextual_decision,omitempty"`
	ContextualErr      error            `json:"-"`

	SnapshotVersion string `json:"snapshot_version"`
}

// Decision returns the decision a correction pass would apply: the
// contextual one when available, the frequency fallback otherwise.
func (r *ScoreReport) Decision() policy.Decision {
	if r.ContextualDecision != nil {
		return *r.ContextualDecision
	}
	return r.FrequencyDecision
}

// Score computes both signals and both decisions for replacing original,
// which must occur at rune offset in text, with candidate. The words must
// have equal length and may differ at several positions; contextual deltas
// are summed over all of them.
//
// Oracle failures are reported in the returned report rather than as an
// error. A done ctx returns its error.
func (e *Engine) Score(ctx context.Context, text string, offset int, original, cand string) (*ScoreReport, error) {
	snap := e.snapshots.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	text, original, cand = norm.NFC.String(text), norm.NFC.String(original), norm.NFC.String(cand)

	diff, err := candidate.Diff(original, cand)
	if err != nil {
		return nil, fmt.Errorf("transcript: score: %w", err)
	}
	runes := []rune(text)
	n := utf8.RuneCountInString(original)
	if offset < 0 || offset+n > len(runes) || string(runes[offset:offset+n]) != original {
		return nil, fmt.Errorf("%w: %q at %d", ErrOffsetMismatch, original, offset)
	}

	ctx, span := observe.StartSpan(ctx, "transcript.score")
	defer span.End()

	p := e.newPass(snap, text)
	class := p.policy.ClassifyWord(original, cand)
	r := &ScoreReport{
		Text:            text,
		Offset:          offset,
		Original:        original,
		Candidate:       cand,
		Positions:       diff,
		Class:           class,
		Frequency:       p.scorer.Frequency(original, cand),
		SnapshotVersion: snap.Version(),
	}
	r.FrequencyDecision = p.policy.Decide(class, policy.SourceFrequency, r.Frequency)

	score, err := p.session.Contextual(ctx, offset, original, cand)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.ContextualErr = err
		return r, nil
	}
	d := p.policy.Decide(class, policy.SourceContextual, score)
	r.Contextual = score
	r.ContextualDecision = &d
	return r, nil
}
