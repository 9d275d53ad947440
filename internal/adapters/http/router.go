package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/config"
	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
	"github.com/chandankumar123456/intellisense-ai/internal/observability/metrics"
)

const (
	serviceName     = "retrieval-api"
	maxRequestBytes = 4 << 20
	defaultLimit    = 10
	maxLimit        = 50
)

type Router struct {
	engine  ports.RetrievalEngine
	queryUC ports.RetrievalQueryService
	metrics *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueTimeout   time.Duration
}

// NewRouter wires the retrieval endpoints. queryUC may be nil when no
// searchers are configured; /v1/retrieval/query then answers 503.
func NewRouter(cfg config.Config, engine ports.RetrievalEngine, queryUC ports.RetrievalQueryService) *Router {
	return &Router{
		engine:         engine,
		queryUC:        queryUC,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		queueTimeout:   cfg.APIQueueTimeout,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieval/score", rt.score)
	api.HandleFunc("POST /v1/retrieval/query", rt.query)
	api.HandleFunc("POST /v1/retrieval/outcomes", rt.recordOutcome)

	var guarded http.Handler = api
	var onReject func(reason string)
	if rt.metrics != nil {
		onReject = func(reason string) { rt.metrics.RecordRejected(serviceName, reason) }
	}
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.queueTimeout, onReject)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst, onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.QueryContext.Text()) == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "score", errors.New("query_context.raw_query is required")))
		return
	}

	result := rt.engine.RerankAndScore(r.Context(), req.QueryContext, req.Pools)
	writeResult(w, r, result)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if rt.queryUC == nil {
		writeError(w, r, domain.WrapError(domain.ErrTemporary, "query", errors.New("candidate search is not configured")))
		return
	}

	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	result, err := rt.queryUC.Retrieve(r.Context(), req.toQueryContext(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, r, result)
}

func (rt *Router) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "record outcome", errors.New("query is required")))
		return
	}
	if req.OutcomeQuality == nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "record outcome", errors.New("outcome_quality is required")))
		return
	}
	if q := *req.OutcomeQuality; q < 0 || q > 1 {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "record outcome", fmt.Errorf("outcome_quality %v is outside [0,1]", q)))
		return
	}

	// Recording is fire-and-forget; the engine detaches it from the request.
	rt.engine.RecordOutcome(r.Context(), req.toFeedback())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

// writeResult sends the result with a summarized trace unless ?trace=full.
func writeResult(w http.ResponseWriter, r *http.Request, result domain.RetrievalResult) {
	if result.Trace.TraceID != "" {
		w.Header().Set(traceIDHeader, result.Trace.TraceID)
	}
	if r.URL.Query().Get("trace") != "full" {
		result.Trace = result.Trace.Summary()
	}
	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
