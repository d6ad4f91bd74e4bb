// Package server exposes the HTTP surface: story generation, admission
// dry runs, budget and usage queries, and async jobs.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/storyloom/internal/auth"
	"github.com/vnmchuo/storyloom/internal/billing"
	"github.com/vnmchuo/storyloom/internal/budget"
	"github.com/vnmchuo/storyloom/internal/pipeline"
	"github.com/vnmchuo/storyloom/internal/story"
	"github.com/vnmchuo/storyloom/internal/worker"
	"github.com/vnmchuo/storyloom/pkg/ratelimit"
)

type Handler struct {
	pipeline   *pipeline.Service
	controller *budget.Controller
	ledger     *budget.Ledger
	recorder   *budget.Recorder
	billing    billing.Store
	limiter    *ratelimit.Limiter
	queue      worker.Queue
	tracer     trace.Tracer
}

func NewHandler(p *pipeline.Service, controller *budget.Controller, ledger *budget.Ledger, recorder *budget.Recorder, billingStore billing.Store, limiter *ratelimit.Limiter, queue worker.Queue, tracer trace.Tracer) *Handler {
	return &Handler{
		pipeline:   p,
		controller: controller,
		ledger:     ledger,
		recorder:   recorder,
		billing:    billingStore,
		limiter:    limiter,
		queue:      queue,
		tracer:     tracer,
	}
}

type generateRequest struct {
	Kind       story.Kind `json:"kind"`
	Model      string     `json:"model"`
	Theme      string     `json:"theme"`
	HeroName   string     `json:"hero_name"`
	AgeGroup   string     `json:"age_group"`
	WordTarget int        `json:"word_target"`
}

const defaultModel = "claude-3-sonnet"

func (g *generateRequest) toStoryRequest(principalID, requestID, tier string) *story.Request {
	req := &story.Request{
		ID:          requestID,
		PrincipalID: principalID,
		Tier:        tier,
		Kind:        g.Kind,
		Model:       g.Model,
		Theme:       g.Theme,
		HeroName:    g.HeroName,
		AgeGroup:    g.AgeGroup,
		WordTarget:  g.WordTarget,
	}
	if req.Kind == "" {
		req.Kind = story.KindStory
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.WordTarget <= 0 {
		t := story.TargetsForAge(req.AgeGroup)
		req.WordTarget = t.PageCount * t.WordsPerPage
	}
	return req
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	principal, req, err := h.prepare(w, r)
	if err != nil {
		return
	}

	outcome, err := h.pipeline.Generate(r.Context(), principal, req)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(outcome)
}

// HandleAdmit is the dry run: the admission verdict with estimate and
// alternatives, nothing generated, nothing charged.
func (h *Handler) HandleAdmit(w http.ResponseWriter, r *http.Request) {
	principal, req, err := h.prepare(w, r)
	if err != nil {
		return
	}

	dec := h.controller.Admit(r.Context(), principal, req)

	status := http.StatusOK
	if err := dec.Err(); errors.Is(err, budget.ErrBudgetExceeded) {
		status = http.StatusPaymentRequired
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dec)
}

func (h *Handler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFrom(w, r)
	if !ok {
		return
	}

	snap, err := h.ledger.Snapshot(r.Context(), principal)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}

func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFrom(w, r)
	if !ok {
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &days); err != nil || days < 1 || days > 90 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid 'days' (1-90)"})
			return
		}
	}

	a, err := h.recorder.Analytics(r.Context(), principal.ID, days)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(a)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// Parse query parameters
	now := time.Now()
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}

	if toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	logs, err := h.billing.GetUsageByPrincipal(ctx, principal.ID, from, to)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	totalCost, err := h.billing.GetTotalCostByPrincipal(ctx, principal.ID, from, to)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"principal_id":   principal.ID,
		"total_requests": len(logs),
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	})
}

func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	principal, req, err := h.prepare(w, r)
	if err != nil {
		return
	}

	job := &worker.Job{
		PrincipalID: principal.ID,
		Tier:        principal.Tier,
		Request:     req,
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (h *Handler) HandleJob(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principalFrom(w, r)
	if !ok {
		return
	}

	jobID := chi.URLParam(r, "id")
	job, outcome, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, worker.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	// Jobs are visible only to the principal that created them.
	if job.PrincipalID != principal.ID {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": worker.ErrJobNotFound.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job":    job,
		"result": outcome,
	})
}

func (h *Handler) principalFrom(w http.ResponseWriter, r *http.Request) (budget.Principal, bool) {
	principalID := auth.GetPrincipalID(r.Context())
	if principalID == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return budget.Principal{}, false
	}
	return budget.Principal{ID: principalID, Tier: auth.GetTier(r.Context())}, true
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (budget.Principal, *story.Request, error) {
	ctx := r.Context()
	principal, ok := h.principalFrom(w, r)
	if !ok {
		return budget.Principal{}, nil, fmt.Errorf("unauthorized")
	}

	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return budget.Principal{}, nil, err
	}
	req := body.toStoryRequest(principal.ID, requestID, principal.Tier)

	_, span := h.tracer.Start(ctx, "server.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("principal_id", principal.ID),
		attribute.String("request_id", requestID),
		attribute.String("model", req.Model),
	)

	// Words are the natural unit here; they track tokens closely enough
	// for per-minute limiting.
	allowed, err := h.limiter.Allow(ctx, principal.ID, req.WordTarget)
	if err != nil || !allowed {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "60s")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return budget.Principal{}, nil, fmt.Errorf("rate limit exceeded")
	}

	return principal, req, nil
}
