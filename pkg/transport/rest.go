package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/kadirpekel/oraculum/pkg/apperr"
	"github.com/kadirpekel/oraculum/pkg/orchestrator"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForError maps the apperr taxonomy onto an HTTP status: a
// malformed request ends in 400, anything else the orchestrator
// surfaces (an upstream LLM failure, a canceled request) is reported
// as a 500 since the request could not complete.
func statusForError(err error) int {
	if apperr.Is(err, apperr.KindValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type transcribeRequest struct {
	URLs []string `json:"urls"`
}

type videoResult struct {
	VideoID           string  `json:"video_id,omitempty"`
	Title             string  `json:"title,omitempty"`
	Duration          float64 `json:"duration,omitempty"`
	Channel           string  `json:"channel,omitempty"`
	SegmentCount      int     `json:"segment_count,omitempty"`
	TranscriptChars   int     `json:"transcript_chars,omitempty"`
	TranscriptPreview string  `json:"transcript_preview,omitempty"`
	Error             string  `json:"error,omitempty"`
}

const transcriptPreviewChars = 500

// handleTranscribe ingests every requested URL independently: one URL's
// failure is reported inline in its own videos[] entry rather than
// failing the whole batch.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.ing == nil {
		writeError(w, http.StatusInternalServerError, "no transcript ingester configured")
		return
	}

	results := make([]videoResult, 0, len(req.URLs))
	for _, url := range req.URLs {
		video, err := s.cache.Ingest(r.Context(), s.ing, url)
		if err != nil {
			results = append(results, videoResult{Error: err.Error()})
			continue
		}
		results = append(results, videoResult{
			VideoID:           video.Metadata.VideoID,
			Title:             video.Metadata.Title,
			Duration:          video.Metadata.Duration,
			Channel:           video.Metadata.Channel,
			SegmentCount:      len(video.Segments),
			TranscriptChars:   video.TranscriptChars(),
			TranscriptPreview: video.Preview(transcriptPreviewChars),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"videos": results})
}

type askRequest struct {
	Question      string   `json:"question"`
	VideoIDs      []string `json:"video_ids"`
	MaxIterations int      `json:"max_iterations"`
}

// handleAsk runs one synchronous Ask call, discarding its intermediate
// node_update events; clients that want to watch the search unfold use
// the /ws endpoint instead.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, end := s.startSpan(r.Context(), "ask", req.Question, req.MaxIterations)
	defer end()

	var tree any
	answer, confidence, err := s.orch.Ask(ctx, orchestrator.AskRequest{
		Question:      req.Question,
		VideoIDs:      req.VideoIDs,
		MaxIterations: req.MaxIterations,
	}, func(e orchestrator.Event) {
		if e.Type == orchestrator.EventSearchComplete {
			if payload, ok := e.Payload.(map[string]any); ok {
				tree = payload["tree"]
			}
		}
	})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":     answer,
		"confidence": confidence,
		"tree":       tree,
	})
}

// handleLoadDataset replaces the orchestrator's currently loaded
// rubric-discovery dataset and returns its summary statistics.
func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	summary, err := s.orch.LoadDataset(raw)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDatasetInfo(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.orch.DatasetInfo()
	if !ok {
		writeError(w, http.StatusNotFound, "no dataset loaded")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleEvalResults runs a fresh discovery pass and returns only its
// eval-report fields, the REST analogue of discovery_complete's payload
// for clients that don't want to open a WebSocket just to read the
// winning rubric's held-out accuracy.
func (s *Server) handleEvalResults(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.orch.DatasetInfo(); !ok {
		writeError(w, http.StatusBadRequest, "no dataset loaded")
		return
	}

	result, err := s.orch.Discover(r.Context(), orchestrator.DiscoverRequest{}, func(orchestrator.Event) {})
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

const defaultDebugTraceLimit = 20

// handleDebugTraces returns the most recent search_run spans captured by
// the debug exporter, for inspecting Ask/Compare/Discover latency without
// a tracing backend. Empty when tracing isn't enabled.
func (s *Server) handleDebugTraces(w http.ResponseWriter, r *http.Request) {
	limit := defaultDebugTraceLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if s.obs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.obs.RecentSearchRuns(limit)})
}
