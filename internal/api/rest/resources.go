package rest

import (
	"net/http"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/service"
)

type resourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type addResourcesRequest struct {
	TargetURI string         `json:"target_uri"`
	Files     []resourceFile `json:"files"`
	// Content/Path shorthand for single-paste ingestion.
	Path    string `json:"path"`
	Content string `json:"content"`
	Trace   bool   `json:"trace"`
}

// AddResources ingests files or pasted text under the shared resources
// space (or an explicit target_uri).
func (h *Handlers) AddResources(w http.ResponseWriter, r *http.Request) {
	var req addResourcesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, "parse", err)
		return
	}
	r, _ = h.withCollector(r, "resources.add", req.Trace)

	inputs := make([]service.ResourceInput, 0, len(req.Files)+1)
	for _, f := range req.Files {
		inputs = append(inputs, service.ResourceInput{Path: f.Path, Content: []byte(f.Content)})
	}
	if req.Path != "" || req.Content != "" {
		inputs = append(inputs, service.ResourceInput{Path: req.Path, Content: []byte(req.Content)})
	}
	if len(inputs) == 0 {
		respondError(w, r, "parse", ovterrors.InvalidArgumentf("either files or path+content is required"))
		return
	}

	rc, _ := identity.FromContext(r.Context())
	result, err := h.svc.AddResources(r.Context(), rc, req.TargetURI, inputs)
	if err != nil {
		respondError(w, r, "ingest", err)
		return
	}
	respondOK(w, r, result)
}
