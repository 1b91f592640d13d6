package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/MrWong99/zhfix/internal/observe"
	"github.com/MrWong99/zhfix/internal/transcript"
	"github.com/MrWong99/zhfix/internal/transcript/candidate"
	"github.com/MrWong99/zhfix/internal/transcript/detect"
	"github.com/MrWong99/zhfix/internal/transcript/policy"
	"github.com/MrWong99/zhfix/pkg/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// correctRequest is the body of POST /v1/correct.
type correctRequest struct {
	Text string `json:"text"`

	// IsFinal defaults to true when omitted.
	IsFinal    *bool   `json:"is_final,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Verbose adds every evaluated candidate and span to the response.
	Verbose bool `json:"verbose,omitempty"`
}

type correctResponse struct {
	Original        string                  `json:"original"`
	Corrected       string                  `json:"corrected"`
	Corrections     []transcript.Correction `json:"corrections"`
	Decisions       []decisionDTO           `json:"decisions,omitempty"`
	Spans           []detect.Span           `json:"spans,omitempty"`
	SnapshotVersion string                  `json:"snapshot_version,omitempty"`
	Fallback        bool                    `json:"fallback"`
}

// verdictDTO is a policy decision with a nullable score. JSON has no
// encoding for -Inf, which marks candidates without a frequency.
type verdictDTO struct {
	Class     policy.Class   `json:"class"`
	Source    policy.Source  `json:"source"`
	Score     *float64       `json:"score"`
	Threshold float64        `json:"threshold"`
	Verdict   policy.Verdict `json:"verdict"`
}

type decisionDTO struct {
	Offset          int        `json:"offset"`
	Original        string     `json:"original"`
	Candidate       string     `json:"candidate"`
	Position        int        `json:"position"`
	Frequency       *float64   `json:"frequency"`
	Contextual      *float64   `json:"contextual"`
	ContextualError string     `json:"contextual_error,omitempty"`
	Decision        verdictDTO `json:"decision"`
}

// scoreRequest is the body of POST /v1/score.
type scoreRequest struct {
	Text      string `json:"text"`
	Offset    int    `json:"offset"`
	Original  string `json:"original"`
	Candidate string `json:"candidate"`
}

type scoreResponse struct {
	Text               string       `json:"text"`
	Offset             int          `json:"offset"`
	Original           string       `json:"original"`
	Candidate          string       `json:"candidate"`
	Positions          []int        `json:"positions"`
	Class              policy.Class `json:"class"`
	Frequency          *float64     `json:"frequency"`
	FrequencyDecision  verdictDTO   `json:"frequency_decision"`
	Contextual         *float64     `json:"contextual"`
	ContextualDecision *verdictDTO  `json:"contextual_decision,omitempty"`
	ContextualError    string       `json:"contextual_error,omitempty"`
	Decision           verdictDTO   `json:"decision"`
	SnapshotVersion    string       `json:"snapshot_version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req correctRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t := types.Transcript{Text: req.Text, IsFinal: true, Confidence: req.Confidence}
	if req.IsFinal != nil {
		t.IsFinal = *req.IsFinal
	}

	ctx := observe.WithSession(r.Context(), req.SessionID)
	res, err := a.Engine().Correct(ctx, t)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if t.IsFinal {
		a.record(ctx, req.SessionID, res)
	}

	resp := correctResponse{
		Original:        req.Text,
		Corrected:       res.Corrected,
		Corrections:     res.Corrections,
		SnapshotVersion: res.SnapshotVersion,
		Fallback:        res.Fallback,
	}
	if req.Verbose {
		resp.Spans = res.Spans
		for _, d := range res.Decisions {
			resp.Decisions = append(resp.Decisions, newDecisionDTO(d))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rep, err := a.Engine().Score(r.Context(), req.Text, req.Offset, req.Original, req.Candidate)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	resp := scoreResponse{
		Text:              rep.Text,
		Offset:            rep.Offset,
		Original:          rep.Original,
		Candidate:         rep.Candidate,
		Positions:         rep.Positions,
		Class:             rep.Class,
		Frequency:         finite(rep.Frequency),
		FrequencyDecision: newVerdictDTO(rep.FrequencyDecision),
		Decision:          newVerdictDTO(rep.Decision()),
		SnapshotVersion:   rep.SnapshotVersion,
	}
	if rep.ContextualErr != nil {
		resp.ContextualError = rep.ContextualErr.Error()
	} else {
		resp.Contextual = finite(rep.Contextual)
		if rep.ContextualDecision != nil {
			v := newVerdictDTO(*rep.ContextualDecision)
			resp.ContextualDecision = &v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// record persists a corrected final transcript. Failures are logged and
// never fail the request.
func (a *App) record(ctx context.Context, sessionID string, res *transcript.CorrectedTranscript) {
	if a.recorder == nil {
		return
	}
	e := types.TranscriptEntry{
		SessionID: sessionID,
		Text:      res.Corrected,
		Timestamp: time.Now().UTC(),
		Duration:  res.Original.Duration,
	}
	if res.Corrected != res.Original.Text {
		e.RawText = res.Original.Text
	}
	if err := a.recorder.WriteEntry(ctx, e); err != nil {
		observe.Logger(ctx).Warn("failed to record transcript", "err", err)
	}
}

func newVerdictDTO(d policy.Decision) verdictDTO {
	return verdictDTO{
		Class:     d.Class,
		Source:    d.Source,
		Score:     finite(d.Score),
		Threshold: d.Threshold,
		Verdict:   d.Verdict,
	}
}

func newDecisionDTO(d transcript.CandidateDecision) decisionDTO {
	out := decisionDTO{
		Offset:    d.Offset,
		Original:  d.Original,
		Candidate: d.Candidate,
		Position:  d.Position,
		Frequency: finite(d.Frequency),
		Decision:  newVerdictDTO(d.Decision),
	}
	if d.ContextualErr != nil {
		out.ContextualError = d.ContextualErr.Error()
	} else {
		out.Contextual = finite(d.Contextual)
	}
	return out
}

// finite returns nil for NaN and infinities.
func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, transcript.ErrOffsetMismatch), errors.Is(err, candidate.ErrLengthMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, transcript.ErrNoSnapshot):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never read.
		status = 499
	}
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
