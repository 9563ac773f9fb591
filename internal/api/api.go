// Package api binds the engine operations to a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/audit"
	"github.com/asgardtech/pathsec/internal/ops"
	"github.com/asgardtech/pathsec/internal/web/auth"
	"github.com/asgardtech/pathsec/internal/web/cache"
	"github.com/asgardtech/pathsec/internal/web/middleware"
	"github.com/asgardtech/pathsec/internal/web/ratelimit"
	"github.com/asgardtech/pathsec/internal/web/response"
	"github.com/asgardtech/pathsec/pkg/pathsec"
)

// Defaults for Options left zero
const (
	DefaultMaxBodyBytes = 1 << 20
	DefaultMaxBatchSize = 1000
)

// Options configures the API handler. Only Engine is required.
type Options struct {
	Engine       *pathsec.Engine
	Verdicts     *cache.Verdicts
	Audit        audit.Recorder
	Limiter      ratelimit.Limiter
	Tokens       *auth.TokenService
	Logger       *zap.Logger
	MaxBodyBytes int64
	MaxBatchSize int
	Version      string
}

// InputRequest is the body of every single-input endpoint
type InputRequest struct {
	Input *string `json:"input" validate:"required"`
}

// BatchRequest applies one operation to many inputs
type BatchRequest struct {
	Operation string   `json:"operation" validate:"required"`
	Inputs    []string `json:"inputs" validate:"required,min=1"`
}

// BatchResponse holds results in input order
type BatchResponse struct {
	Operation string        `json:"operation"`
	Results   []interface{} `json:"results"`
}

// HealthResponse is served by /healthz
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	Platform    string `json:"platform"`
	Fingerprint string `json:"fingerprint"`
}

type handler struct {
	engine       *pathsec.Engine
	verdicts     *cache.Verdicts
	audit        audit.Recorder
	logger       *zap.Logger
	validate     *validator.Validate
	maxBodyBytes int64
	maxBatchSize int
	version      string
}

// NewRouter builds the HTTP handler: recovery, request ID, logging, optional
// bearer auth, optional rate limiting, then the routes
func NewRouter(opts Options) http.Handler {
	h := &handler{
		engine:       opts.Engine,
		verdicts:     opts.Verdicts,
		audit:        opts.Audit,
		logger:       opts.Logger,
		validate:     validator.New(),
		maxBodyBytes: opts.MaxBodyBytes,
		maxBatchSize: opts.MaxBatchSize,
		version:      opts.Version,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.verdicts == nil {
		h.verdicts = cache.NewVerdicts(nil, h.engine.Fingerprint(), h.logger)
	}
	if h.audit == nil {
		h.audit = audit.Nop{}
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = DefaultMaxBodyBytes
	}
	if h.maxBatchSize <= 0 {
		h.maxBatchSize = DefaultMaxBatchSize
	}

	chain := middleware.NewChain(
		middleware.Recovery(h.logger),
		middleware.RequestID(),
		middleware.Logging(h.logger),
	)
	if opts.Tokens != nil {
		chain.Use(middleware.Auth(opts.Tokens))
	}
	if opts.Limiter != nil {
		chain.Use(middleware.RateLimit(opts.Limiter, h.logger))
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) { response.RenderNotFound(w, "") })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { response.RenderMethodNotAllowed(w) })

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.BodyLimit(h.maxBodyBytes))
		for _, op := range ops.All {
			r.With(middleware.RequireScope(op.Scope())).Post("/"+string(op), h.single(op))
		}
		r.Post("/batch", h.batch)
	})

	return chain.Then(r)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	response.RenderJSON(w, http.StatusOK, &HealthResponse{
		Status:      "ok",
		Version:     h.version,
		Platform:    h.engine.Rules().Name,
		Fingerprint: h.engine.Fingerprint(),
	})
}

func (h *handler) single(op ops.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InputRequest
		if !h.decode(w, r, &req) {
			return
		}
		response.RenderJSON(w, http.StatusOK, h.apply(r.Context(), op, *req.Input))
	}
}

func (h *handler) batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	op, err := ops.Parse(req.Operation)
	if err != nil {
		response.RenderError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if !middleware.HasScope(r.Context(), op.Scope()) {
		response.RenderForbidden(w, "token lacks the "+op.Scope()+" scope")
		return
	}
	if len(req.Inputs) > h.maxBatchSize {
		response.RenderErrorWithCode(w, http.StatusUnprocessableEntity,
			fmt.Errorf("batch exceeds the maximum of %d inputs", h.maxBatchSize), "batch_too_large")
		return
	}

	results := make([]interface{}, len(req.Inputs))
	for i, input := range req.Inputs {
		results[i] = h.apply(r.Context(), op, input)
	}
	response.RenderJSON(w, http.StatusOK, &BatchResponse{Operation: string(op), Results: results})
}

// apply serves op from the verdict cache when possible and audits negative
// verdicts. Neither cache nor audit failures change the result.
func (h *handler) apply(ctx context.Context, op ops.Operation, input string) interface{} {
	result := op.NewResult()
	if !h.verdicts.Lookup(ctx, string(op), input, result) {
		var err error
		result, err = ops.Apply(h.engine, op, input)
		if err != nil {
			// ops.All and ops.Apply cover the same operations
			panic(err)
		}
		h.verdicts.Store(ctx, string(op), input, result)
	}

	if reason, rejected := ops.Rejection(result); rejected {
		entry := audit.Entry{
			Operation: string(op),
			Input:     input,
			Reason:    reason,
			RequestID: middleware.GetRequestID(ctx),
			CreatedAt: time.Now().UTC(),
		}
		if err := h.audit.Record(ctx, entry); err != nil {
			h.logger.Warn("audit record failed",
				zap.String("request_id", entry.RequestID),
				zap.String("operation", entry.Operation),
				zap.Error(err),
			)
		}
	}
	return result
}

// decode reads a JSON body into dst and validates it, rendering the error
// response itself when it fails
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.RenderRequestTooLarge(w, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			response.RenderBadRequest(w, "request body is empty")
		default:
			response.RenderBadRequest(w, "invalid JSON body: "+err.Error())
		}
		return false
	}
	if dec.More() {
		response.RenderBadRequest(w, "request body must contain a single JSON object")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		response.RenderError(w, http.StatusUnprocessableEntity, err)
		return false
	}
	return true
}
