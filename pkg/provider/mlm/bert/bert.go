// Package bert implements mlm.Provider on top of an ONNX export of a Chinese
// BERT masked-LM, run through ONNX Runtime.
//
// Chinese BERT vocabularies tokenize CJK text one character per token, so a
// sentence maps to [CLS] c1 … cn [SEP] without a subword pass. Characters
// missing from the vocabulary become [UNK]. The model must take int64
// input_ids and attention_mask (token_type_ids optional) and produce logits
// shaped [1, sequence, vocab] as its first output.
//
// ONNX Runtime sessions are not re-entrant for a single IO binding, so runs
// are serialized. A cancelled context abandons the wait for a run; the run
// itself completes in the background and its tensors are released there.
package bert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/MrWong99/zhfix/pkg/provider/mlm"
)

const (
	tokenCLS  = "[CLS]"
	tokenSEP  = "[SEP]"
	tokenMASK = "[MASK]"
	tokenUNK  = "[UNK]"
)

// Option configures an [Oracle].
type Option func(*Oracle)

// WithLibraryPath sets the ONNX Runtime shared library. Default: the
// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable, falling back to the
// onnxruntime_go default.
func WithLibraryPath(path string) Option {
	return func(o *Oracle) {
		o.libPath = path
	}
}

// WithMaxSequenceLength bounds the token window, special tokens included.
// Default and maximum: [mlm.MaxSequenceLength].
func WithMaxSequenceLength(n int) Option {
	return func(o *Oracle) {
		if n >= 3 && n <= mlm.MaxSequenceLength {
			o.maxLen = n
		}
	}
}

// WithModelID overrides the identifier reported by ModelID. Default: the
// model path.
func WithModelID(id string) Option {
	return func(o *Oracle) {
		o.modelID = id
	}
}

// Oracle is a masked-LM oracle backed by ONNX Runtime.
type Oracle struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	inputs  []string

	vocab                        mlm.Vocab
	clsID, sepID, maskID, unkID int64

	libPath string
	maxLen  int
	modelID string
}

var _ mlm.Provider = (*Oracle)(nil)

// New loads the model at modelPath and the vocabulary at vocabPath. A path
// ending in .txt is read as a BERT vocab.txt, anything else as a HuggingFace
// tokenizer.json. Failures wrap [mlm.ErrUnavailable].
func New(modelPath, vocabPath string, opts ...Option) (*Oracle, error) {
	o := &Oracle{
		libPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
		maxLen:  mlm.MaxSequenceLength,
		modelID: modelPath,
	}
	for _, opt := range opts {
		opt(o)
	}

	vocab, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mlm.ErrUnavailable, err)
	}
	o.vocab = vocab
	ids := make([]int64, 4)
	for i, tok := range []string{tokenCLS, tokenSEP, tokenMASK, tokenUNK} {
		id, ok := vocab.ID(tok)
		if !ok {
			return nil, fmt.Errorf("%w: vocabulary lacks %s", mlm.ErrUnavailable, tok)
		}
		ids[i] = int64(id)
	}
	o.clsID, o.sepID, o.maskID, o.unkID = ids[0], ids[1], ids[2], ids[3]

	if err := initRuntime(o.libPath); err != nil {
		return nil, fmt.Errorf("%w: init onnxruntime: %w", mlm.ErrUnavailable, err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: model info: %w", mlm.ErrUnavailable, err)
	}
	if len(outputInfo) == 0 {
		return nil, fmt.Errorf("%w: model has no outputs", mlm.ErrUnavailable)
	}
	for _, in := range inputInfo {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			o.inputs = append(o.inputs, in.Name)
		default:
			return nil, fmt.Errorf("%w: unsupported model input %q", mlm.ErrUnavailable, in.Name)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %w", mlm.ErrUnavailable, err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, o.inputs, []string{outputInfo[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", mlm.ErrUnavailable, err)
	}
	o.session = session

	slog.Info("masked-LM oracle loaded",
		"model", o.modelID,
		"inputs", o.inputs,
		"output", outputInfo[0].Name,
		"vocab", vocab.Size(),
		"max_len", o.maxLen,
	)
	return o, nil
}

// ModelID implements [mlm.Provider].
func (o *Oracle) ModelID() string { return o.modelID }

// Close releases the ONNX session.
func (o *Oracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}

// Predict implements [mlm.Provider].
func (o *Oracle) Predict(ctx context.Context, text string, pos int) (*mlm.Prediction, error) {
	runes := []rune(text)
	if pos < 0 || pos >= len(runes) {
		return nil, fmt.Errorf("bert: position %d outside text of length %d", pos, len(runes))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, maskAt := o.encode(runes, pos)

	type result struct {
		logits []float32
		err    error
	}
	done := make(chan result, 1)
	go func() {
		logits, err := o.run(ids, maskAt)
		done <- result{logits, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", mlm.ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &mlm.Prediction{Logits: r.logits, Vocab: o.vocab}, nil
	}
}

// encode builds the token ids for the window around pos and returns the index
// of the masked token. Whitespace and control runes are dropped the way the
// BERT basic tokenizer drops them, so they never occupy a position. The
// masked rune is always kept.
func (o *Oracle) encode(runes []rune, pos int) ([]int64, int) {
	kept := make([]rune, 0, len(runes))
	at := 0
	for i, r := range runes {
		if i == pos {
			at = len(kept)
		} else if dropped(r) {
			continue
		}
		kept = append(kept, r)
	}

	width := o.maxLen - 2
	start := 0
	if len(kept) > width {
		start = min(max(at-width/2, 0), len(kept)-width)
	}
	end := min(start+width, len(kept))

	ids := make([]int64, 0, end-start+2)
	ids = append(ids, o.clsID)
	for i := start; i < end; i++ {
		if i == at {
			ids = append(ids, o.maskID)
			continue
		}
		ids = append(ids, o.tokenID(kept[i]))
	}
	ids = append(ids, o.sepID)
	return ids, at - start + 1
}

func dropped(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsControl(r) || r == 0 || r == utf8.RuneError
}

func (o *Oracle) tokenID(r rune) int64 {
	tok := string(r)
	if id, ok := o.vocab.ID(tok); ok {
		return int64(id)
	}
	if id, ok := o.vocab.ID(strings.ToLower(tok)); ok {
		return int64(id)
	}
	return o.unkID
}

// run executes one inference and copies out the logits row at maskAt.
func (o *Oracle) run(ids []int64, maskAt int) ([]float32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, fmt.Errorf("%w: session closed", mlm.ErrUnavailable)
	}

	n := int64(len(ids))
	shape := ort.NewShape(1, n)
	mask := make([]int64, n)
	types := make([]int64, n)
	for i := range mask {
		mask[i] = 1
	}

	byName := map[string][]int64{
		"input_ids":      ids,
		"attention_mask": mask,
		"token_type_ids": types,
	}
	inputs := make([]ort.Value, 0, len(o.inputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range o.inputs {
		t, err := ort.NewTensor(shape, byName[name])
		if err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %w", mlm.ErrUnavailable, name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := o.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: run: %w", mlm.ErrUnavailable, err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output type %T", mlm.ErrUnavailable, outputs[0])
	}
	outShape := out.GetShape()
	if len(outShape) != 3 || outShape[1] != n {
		return nil, fmt.Errorf("%w: unexpected output shape %v", mlm.ErrUnavailable, outShape)
	}
	vocabSize := int(outShape[2])
	data := out.GetData()
	row := make([]float32, vocabSize)
	copy(row, data[maskAt*vocabSize:(maskAt+1)*vocabSize])
	return row, nil
}

// ── ONNX Runtime environment ─────────────────────────────────────────────────

var (
	ortMu   sync.Mutex
	ortInit bool
)

func initRuntime(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortInit {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}
	ortInit = true
	return nil
}

// ── Vocabulary ───────────────────────────────────────────────────────────────

func loadVocab(path string) (mlm.Vocab, error) {
	if strings.HasSuffix(path, ".txt") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("bert: open vocab: %w", err)
		}
		defer f.Close()
		return mlm.ReadVocab(f)
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("bert: load tokenizer %s: %w", path, err)
	}
	return tokenizerVocab{tk}, nil
}

// tokenizerVocab adapts a HuggingFace tokenizer to [mlm.Vocab].
type tokenizerVocab struct {
	tk *tokenizer.Tokenizer
}

func (v tokenizerVocab) ID(token string) (int, bool) { return v.tk.TokenToId(token) }

func (v tokenizerVocab) Size() int { return v.tk.GetVocabSize(true) }
