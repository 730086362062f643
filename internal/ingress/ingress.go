// Package ingress exposes onCommittedSegment (spec.md §6.3): the entry
// point an upstream ASR/MT pipeline calls once it has committed a
// source-language segment, handing it to the orchestrator without
// blocking on any remote I/O.
package ingress

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jkang1643/exbabel/internal/orchestrator"
	"github.com/jkang1643/exbabel/internal/route"
)

// Enqueuer is the subset of orchestrator.Orchestrator that ingress
// depends on.
type Enqueuer interface {
	EnqueueSegment(sessionID string, seg orchestrator.QueuedSegment)
}

// Handler serves the onCommittedSegment HTTP entry point.
type Handler struct {
	orch Enqueuer
	log  *slog.Logger
}

// NewHandler constructs an ingress Handler over orch.
func NewHandler(orch Enqueuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{orch: orch, log: logger}
}

// committedSegmentRequest is the wire shape of one onCommittedSegment
// call, per spec.md §6.3.
type committedSegmentRequest struct {
	SessionID  string     `json:"sessionId"`
	TenantID   string     `json:"tenantId,omitempty"`
	SegmentID  string     `json:"segmentId,omitempty"`
	Text       string     `json:"text"`
	SourceLang string     `json:"sourceLang"`
	Voice      string     `json:"voice"`
	Tier       route.Tier `json:"tier,omitempty"`
	IsFinal    bool       `json:"isFinal"`
}

// ServeHTTP implements onCommittedSegment: decode, validate the bare
// minimum, enqueue, and return immediately. Synthesis and broadcast
// happen asynchronously in the orchestrator's worker.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req committedSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Text == "" || req.SourceLang == "" {
		http.Error(w, "sessionId, text and sourceLang are required", http.StatusBadRequest)
		return
	}

	h.orch.EnqueueSegment(req.SessionID, orchestrator.QueuedSegment{
		SegmentID:  req.SegmentID,
		Text:       req.Text,
		SourceLang: req.SourceLang,
		Voice:      req.Voice,
		Tier:       req.Tier,
		IsFinal:    req.IsFinal,
	})

	h.log.Debug("segment enqueued", "sessionId", req.SessionID, "segmentId", req.SegmentID)
	w.WriteHeader(http.StatusAccepted)
}
