package rest

import (
	"net/http"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/retriever"
	"github.com/openviking/openviking/internal/trace"
)

type findRequest struct {
	Query             string   `json:"query"`
	ContextType       string   `json:"context_type"`
	TargetURI         string   `json:"target_uri"`
	TargetDirectories []string `json:"target_directories"`
	Limit             int      `json:"limit"`
	ScoreThreshold    float64  `json:"score_threshold"`
	Trace             bool     `json:"trace"`
}

type searchRequest struct {
	findRequest
	SessionID string `json:"session_id"`
}

type grepRequest struct {
	URI     string `json:"uri"`
	Pattern string `json:"pattern"`
	Trace   bool   `json:"trace"`
}

type globRequest struct {
	URI     string `json:"uri"`
	Pattern string `json:"pattern"`
	Trace   bool   `json:"trace"`
}

func (h *Handlers) withCollector(r *http.Request, operation string, enabled bool) (*http.Request, *trace.Collector) {
	collector := trace.NewCollectorWithBudget(operation, enabled, h.traceMaxEvents)
	if h.stream != nil && collector.Enabled() {
		collector.Publish = func(summary models.TraceSummary) {
			_ = h.stream.BroadcastTraceSummary(summary)
		}
	}
	return r.WithContext(trace.Bind(r.Context(), collector)), collector
}

func contextTypeOf(s string) (models.ContextType, error) {
	switch s {
	case "", "resource":
		return models.ContextTypeResource, nil
	case "memory":
		return models.ContextTypeMemory, nil
	case "skill":
		return models.ContextTypeSkill, nil
	case "session":
		return models.ContextTypeSession, nil
	}
	return "", ovterrors.InvalidArgumentf("unknown context_type %q", s)
}

func (req findRequest) typedQuery() (retriever.TypedQuery, retriever.Options, error) {
	contextType, err := contextTypeOf(req.ContextType)
	if err != nil {
		return retriever.TypedQuery{}, retriever.Options{}, err
	}
	dirs := req.TargetDirectories
	if req.TargetURI != "" {
		dirs = append([]string{req.TargetURI}, dirs...)
	}
	q := retriever.TypedQuery{
		Query:             req.Query,
		ContextType:       contextType,
		TargetDirectories: dirs,
	}
	opts := retriever.Options{
		Limit:          req.Limit,
		ScoreThreshold: req.ScoreThreshold,
	}
	return q, opts, nil
}

// Find is flat semantic search: roots only, no drill-down.
func (h *Handlers) Find(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	r, _ = h.withCollector(r, "search.find", req.Trace)

	rc, _ := identity.FromContext(r.Context())
	q, opts, err := req.typedQuery()
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	results, err := h.svc.Retrieve.Retrieve(r.Context(), rc, q, opts)
	if err != nil {
		respondError(w, r, "retrieve", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"results": results})
}

// Search is hierarchical search with drill-down from roots to leaves.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	r, _ = h.withCollector(r, "search.search", req.Trace)

	rc, _ := identity.FromContext(r.Context())
	q, opts, err := req.typedQuery()
	if err != nil {
		respondError(w, r, "parse", err)
		return
	}
	opts.DrillDown = true
	results, err := h.svc.Retrieve.Retrieve(r.Context(), rc, q, opts)
	if err != nil {
		respondError(w, r, "retrieve", err)
		return
	}
	respondOK(w, r, map[string]interface{}{"results": results, "session_id": req.SessionID})
}

// Grep is lexical content search under a URI subtree.
func (h *Handlers) Grep(w http.ResponseWriter, r *http.Request) {
	var req grepRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if req.URI == "" {
		req.URI = "viking://"
	}
	r, collector := h.withCollector(r, "search.grep", req.Trace)

	rc, _ := identity.FromContext(r.Context())
	matches, err := h.svc.FS.Grep(r.Context(), rc, req.URI, req.Pattern)
	if err != nil {
		respondError(w, r, "fs", err)
		return
	}
	collector.Set("vector.returned", len(matches))
	respondOK(w, r, map[string]interface{}{"matches": matches})
}

// Glob matches file patterns under a URI subtree.
func (h *Handlers) Glob(w http.ResponseWriter, r *http.Request) {
	var req globRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	if req.URI == "" {
		req.URI = "viking://"
	}
	r, collector := h.withCollector(r, "search.glob", req.Trace)

	rc, _ := identity.FromContext(r.Context())
	uris, err := h.svc.FS.Glob(r.Context(), rc, req.URI, req.Pattern)
	if err != nil {
		respondError(w, r, "fs", err)
		return
	}
	collector.Set("vector.returned", len(uris))
	respondOK(w, r, map[string]interface{}{"uris": uris})
}
