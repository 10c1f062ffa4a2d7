// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adiadia/prompt-runner/internal/domain"
	"github.com/adiadia/prompt-runner/internal/metrics"
	"github.com/adiadia/prompt-runner/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type executeRequest struct {
	CallbackURL string `json:"callback_url"`
}

type executeSequenceRequest struct {
	Prompts     []int  `json:"prompts"`
	StopOnError bool   `json:"stop_on_error"`
	CallbackURL string `json:"callback_url"`
}

type Deps struct {
	Documents DocumentRegistry
	Engine    ExecutionStarter
	Tracker   ExecutionTracker
	Events    EventSource

	Logger          *slog.Logger
	APIToken        string
	RateLimitPerMin int
	Version         string
	Commit          string
	BuildDate       string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(middleware.TokenAuth(deps.APIToken, deps.RateLimitPerMin, logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- REGISTER DOCUMENT ----------------

	r.Post("/documents", func(w http.ResponseWriter, r *http.Request) {
		doc, err := decodeDocument(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := deps.Documents.Add(doc); err != nil {
			if errors.Is(err, domain.ErrInvalidDocument) || errors.Is(err, domain.ErrInvalidStep) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			logger.Error("register document failed", "document_id", doc.ID, "error", err)
			http.Error(w, "failed to register document", http.StatusInternalServerError)
			return
		}

		metrics.IncDocumentsRegistered()
		logger.Info("document registered via API", "document_id", doc.ID)

		registered, err := deps.Documents.Snapshot(doc.ID)
		if err != nil {
			logger.Error("read back registered document failed", "document_id", doc.ID, "error", err)
			http.Error(w, "failed to register document", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, registered)
	})

	// ---------------- LIST DOCUMENTS ----------------

	r.Get("/documents", func(w http.ResponseWriter, r *http.Request) {
		docs := deps.Documents.List()
		summaries := make([]documentSummary, 0, len(docs))
		for i := range docs {
			summaries = append(summaries, summarizeDocument(&docs[i]))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": summaries,
		})
	})

	// ---------------- GET DOCUMENT ----------------

	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

		doc, err := deps.Documents.Snapshot(docID)
		if err != nil {
			if errors.Is(err, domain.ErrDocumentNotFound) {
				logger.Warn("document not found", "document_id", docID)
				http.Error(w, "document not found", http.StatusNotFound)
				return
			}
			logger.Error("get document failed", "document_id", docID, "error", err)
			http.Error(w, "failed to get document", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, doc)
	})

	// ---------------- EXECUTE PROMPT ----------------

	r.Post("/documents/{id}/prompts/{number}/execute", func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

		promptNumber, err := strconv.Atoi(chi.URLParam(r, "number"))
		if err != nil || promptNumber < 1 {
			http.Error(w, "invalid prompt number", http.StatusBadRequest)
			return
		}

		reqBody, err := decodeExecuteRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		executionID, err := deps.Engine.StartExecution(r.Context(), docID, promptNumber, reqBody.CallbackURL)
		if err != nil {
			writeExecutionError(w, logger, docID, promptNumber, err)
			return
		}

		logger.Info("execution started via API",
			"execution_id", executionID,
			"document_id", docID,
			"prompt", promptNumber,
		)

		writeJSON(w, http.StatusAccepted, map[string]string{
			"execution_id": executionID.String(),
			"status":       string(domain.PromptRunning),
		})
	})

	// ---------------- EXECUTE SEQUENCE ----------------

	r.Post("/documents/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

		reqBody, err := decodeExecuteSequenceRequest(r)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		prompts := reqBody.Prompts
		if len(prompts) == 0 {
			doc, err := deps.Documents.Snapshot(docID)
			if err != nil {
				if errors.Is(err, domain.ErrDocumentNotFound) {
					http.Error(w, "document not found", http.StatusNotFound)
					return
				}
				logger.Error("get document failed", "document_id", docID, "error", err)
				http.Error(w, "failed to execute sequence", http.StatusInternalServerError)
				return
			}
			for _, p := range doc.Prompts {
				prompts = append(prompts, p.Number)
			}
		}

		err = deps.Engine.StartSequence(r.Context(), docID, prompts, reqBody.StopOnError, reqBody.CallbackURL)
		if err != nil {
			writeExecutionError(w, logger, docID, 0, err)
			return
		}

		logger.Info("sequence started via API",
			"document_id", docID,
			"prompts", len(prompts),
			"stop_on_error", reqBody.StopOnError,
		)

		writeJSON(w, http.StatusAccepted, map[string]any{
			"document_id": docID,
			"prompts":     prompts,
		})
	})

	// ---------------- LIST ACTIVE EXECUTIONS ----------------

	r.Get("/executions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"executions": deps.Tracker.ListActive(),
		})
	})

	// ---------------- GET EXECUTION ----------------

	r.Get("/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		executionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid execution ID", http.StatusBadRequest)
			return
		}

		exec, err := deps.Tracker.Get(executionID)
		if err != nil {
			if errors.Is(err, domain.ErrExecutionNotFound) {
				logger.Warn("execution not found", "execution_id", executionID)
				http.Error(w, "execution not found", http.StatusNotFound)
				return
			}
			logger.Error("get execution failed", "execution_id", executionID, "error", err)
			http.Error(w, "failed to get execution", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, exec)
	})

	// ---------------- CANCEL EXECUTION ----------------

	r.Post("/executions/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		executionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid execution ID", http.StatusBadRequest)
			return
		}

		if err := deps.Tracker.Cancel(executionID); err != nil {
			if errors.Is(err, domain.ErrExecutionNotFound) {
				logger.Warn("execution not found", "execution_id", executionID)
				http.Error(w, "execution not found", http.StatusNotFound)
				return
			}
			logger.Error("cancel execution failed", "execution_id", executionID, "error", err)
			http.Error(w, "failed to cancel execution", http.StatusInternalServerError)
			return
		}

		logger.Info("execution cancelled via API", "execution_id", executionID)

		writeJSON(w, http.StatusOK, map[string]string{
			"execution_id": executionID.String(),
			"status":       string(domain.PromptCancelled),
		})
	})

	// ---------------- STREAM EVENTS (SSE) ----------------

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		if deps.Events == nil {
			logger.Error("sse event source is not configured")
			http.Error(w, "failed to stream events", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		docFilter := strings.TrimSpace(r.URL.Query().Get("document_id"))

		events, unsubscribe := deps.Events.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				if docFilter != "" && ev.DocumentID != docFilter {
					continue
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					logger.Error("sse marshal failed", "type", ev.Type, "error", err)
					return
				}
				if _, err := fmt.Fprintf(w, "event: execution_update\ndata: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})

	return r
}

type documentSummary struct {
	ID       string                  `json:"id"`
	Title    string                  `json:"title"`
	Metadata domain.DocumentMetadata `json:"metadata"`
}

func summarizeDocument(doc *domain.PromptDocument) documentSummary {
	return documentSummary{
		ID:       doc.ID,
		Title:    doc.Title,
		Metadata: doc.Metadata,
	}
}

// writeExecutionError maps admission errors onto HTTP statuses: missing
// document or prompt is 404, unmet dependency and in-flight conflicts
// are 409, everything else is a 500.
func writeExecutionError(w http.ResponseWriter, logger *slog.Logger, docID string, promptNumber int, err error) {
	var depErr *domain.UnsatisfiedDependencyError

	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		logger.Warn("document not found", "document_id", docID)
		http.Error(w, "document not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPromptNotFound):
		logger.Warn("prompt not found", "document_id", docID, "prompt", promptNumber)
		http.Error(w, "prompt not found", http.StatusNotFound)
	case errors.As(err, &depErr):
		http.Error(w, depErr.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrExecutionInFlight):
		http.Error(w, "prompt execution already in flight", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.Error("start execution failed",
			"document_id", docID,
			"prompt", promptNumber,
			"error", err,
		)
		http.Error(w, "failed to start execution", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeDocument(r *http.Request) (domain.PromptDocument, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return domain.PromptDocument{}, errors.New("empty request body")
	}

	var doc domain.PromptDocument
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return domain.PromptDocument{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return domain.PromptDocument{}, errors.New("request body must contain exactly one JSON object")
	}

	return doc, nil
}

func decodeExecuteRequest(r *http.Request) (executeRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return executeRequest{}, nil
	}

	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return executeRequest{}, nil
		}
		return executeRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return executeRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	req.CallbackURL = strings.TrimSpace(req.CallbackURL)
	if err := validateCallbackURL(req.CallbackURL); err != nil {
		return executeRequest{}, err
	}
	return req, nil
}

func decodeExecuteSequenceRequest(r *http.Request) (executeSequenceRequest, error) {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return executeSequenceRequest{}, nil
	}

	var req executeSequenceRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return executeSequenceRequest{}, nil
		}
		return executeSequenceRequest{}, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return executeSequenceRequest{}, errors.New("request body must contain exactly one JSON object")
	}

	for _, n := range req.Prompts {
		if n < 1 {
			return executeSequenceRequest{}, errors.New("prompt numbers must be >= 1")
		}
	}

	req.CallbackURL = strings.TrimSpace(req.CallbackURL)
	if err := validateCallbackURL(req.CallbackURL); err != nil {
		return executeSequenceRequest{}, err
	}
	return req, nil
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("invalid callback_url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("unsupported callback_url scheme")
	}
	return nil
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
