package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/maltedev/product-card-scraper/internal/runner"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/sink"
)

const maxBatchURLs = 50

type Handlers struct {
	scraper   runner.Scraper
	batch     *runner.Runner
	sink      sink.Sink
	logger    *slog.Logger

	mu    sync.Mutex
	stats map[string]int
}

// NewHandlers wires the HTTP surface. batch and out may be nil: without a
// runner the batch endpoint is not offered, without a sink records are
// only returned to the caller.
func NewHandlers(s runner.Scraper, batch *runner.Runner, out sink.Sink, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		scraper:   s,
		batch:     batch,
		sink:      out,
		logger:    logger.With("component", "api"),
		stats:     make(map[string]int),
	}
}

// ExtractRequest represents the request for a single product card
type ExtractRequest struct {
	URL string `json:"url"`
}

// BatchRequest represents the request for several product cards
type BatchRequest struct {
	URLs []string `json:"urls"`
}

// ExtractProduct handles single product extraction. Failures are returned
// as a ScrapeResult with a status matching the failure code.
func (h *Handlers) ExtractProduct(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result := h.scraper.Scrape(r.Context(), req.URL)
	if !result.Success {
		h.count(result.Error.Code)
		h.logger.Warn("failed to extract product", "url", req.URL, "code", result.Error.Code, "error", result.Error.Message)
		h.respondJSON(w, StatusForCode(result.Error.Code), result)
		return
	}
	h.count("ok")

	if h.sink != nil {
		if err := h.sink.Write(r.Context(), *result.Product); err != nil {
			h.logger.Error("failed to store product", "url", req.URL, "error", err)
		}
	}

	h.respondJSON(w, http.StatusOK, result)
}

// ExtractBatch runs several URLs through the batch runner and returns its
// summary, extracted products included. Records also go to the runner's sink.
func (h *Handlers) ExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}
	if len(req.URLs) > maxBatchURLs {
		h.respondError(w, http.StatusBadRequest, "too many urls")
		return
	}

	summary, err := h.batch.Run(r.Context(), req.URLs)
	if err != nil {
		h.logger.Error("batch failed", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.respondError(w, status, "batch failed")
		return
	}

	for code, n := range summary.ByCode {
		h.countN(code, n)
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// GetStats returns outcome counts since start, keyed by failure code or "ok".
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	stats := make(map[string]int, len(h.stats))
	for k, v := range h.stats {
		stats[k] = v
	}
	h.mu.Unlock()

	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusForCode maps a failure code to its HTTP status.
func StatusForCode(code string) int {
	switch code {
	case scraper.CodeInvalidInput:
		return http.StatusBadRequest
	case scraper.CodeUnreachable:
		return http.StatusBadGateway
	case scraper.CodeNotFound:
		return http.StatusNotFound
	case scraper.CodeTimedOut:
		return http.StatusGatewayTimeout
	case scraper.CodeMissingField:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) count(code string) {
	h.countN(code, 1)
}

func (h *Handlers) countN(code string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats[code] += n
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
