/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminapi

import (
	"net/http"
	"sort"

	"github.com/acronis/go-appkit/httpserver/middleware"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/restapi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LimJW/go-large-file-uploader/limiter"
)

// ErrorDomain is used in all error responses of the management API.
const ErrorDomain = "UploadLimiter"

// Error codes.
const (
	ErrCodeInvalidID   = "invalidID"
	ErrCodeInvalidRate = "invalidRate"
)

const urlParamID = "id"

// RateLimits is a representation of master ceilings.
type RateLimits struct {
	MaximumRatePerClientInKiloBytes int64 `json:"maximumRatePerClientInKiloBytes"`
	MaximumOverAllRateInKiloBytes   int64 `json:"maximumOverAllRateInKiloBytes"`
	InstantRateInBytes              int64 `json:"instantRateInBytes"`
}

// UpdateRateLimits is a body of PUT /rate-limits. Omitted fields are left unchanged.
type UpdateRateLimits struct {
	MaximumRatePerClientInKiloBytes *int64 `json:"maximumRatePerClientInKiloBytes"`
	MaximumOverAllRateInKiloBytes   *int64 `json:"maximumOverAllRateInKiloBytes"`
}

// Request is a representation of a tracked upload request.
type Request struct {
	ID uuid.UUID `json:"id"`
	limiter.RequestConfigSnapshot
}

// Client is a representation of a client in the registry.
type Client struct {
	ID             uuid.UUID   `json:"id"`
	Active         bool        `json:"active"`
	ActiveRequests []uuid.UUID `json:"activeRequests"`
}

// CancelResult is a response of POST /requests/{id}/cancel.
type CancelResult struct {
	Cancelled bool `json:"cancelled"`
}

// Handler serves the management API of the upload limiter.
type Handler struct {
	registry *limiter.OperationRegistry
	store    *limiter.RequestConfigStore
	master   *limiter.MasterRateConfig
	logger   log.FieldLogger
}

// NewHandler creates a new Handler.
func NewHandler(
	registry *limiter.OperationRegistry,
	store *limiter.RequestConfigStore,
	master *limiter.MasterRateConfig,
	logger log.FieldLogger,
) *Handler {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Handler{registry: registry, store: store, master: master, logger: logger}
}

// Routes registers management endpoints. It may be used as httpserver.APIRoute.
func (h *Handler) Routes(router chi.Router) {
	router.Get("/rate-limits", h.getRateLimits)
	router.Put("/rate-limits", h.updateRateLimits)

	router.Get("/requests", h.listRequests)
	router.Route("/requests/{"+urlParamID+"}", func(router chi.Router) {
		router.Get("/", h.getRequest)
		router.Post("/cancel", h.cancelRequest)
		router.Post("/pause", h.pauseRequest)
		router.Post("/resume", h.resumeRequest)
		router.Post("/reset", h.resetRequest)
	})

	router.Get("/clients/{"+urlParamID+"}", h.getClient)
}

func (h *Handler) getRateLimits(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.rateLimits(), h.loggerFrom(r))
}

func (h *Handler) updateRateLimits(rw http.ResponseWriter, r *http.Request) {
	logger := h.loggerFrom(r)

	var req UpdateRateLimits
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrorDomain, err, logger)
		return
	}
	if (req.MaximumRatePerClientInKiloBytes != nil && *req.MaximumRatePerClientInKiloBytes < 0) ||
		(req.MaximumOverAllRateInKiloBytes != nil && *req.MaximumOverAllRateInKiloBytes < 0) {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidRate, "Rate must not be negative."), logger)
		return
	}

	if req.MaximumRatePerClientInKiloBytes != nil {
		h.master.SetMaximumRatePerClientInKiloBytes(*req.MaximumRatePerClientInKiloBytes)
	}
	if req.MaximumOverAllRateInKiloBytes != nil {
		h.master.SetMaximumOverAllRateInKiloBytes(*req.MaximumOverAllRateInKiloBytes)
	}
	logger.Info("rate limits updated",
		log.Int64("max_rate_per_client_kb", h.master.MaximumRatePerClientInKiloBytes()),
		log.Int64("max_overall_rate_kb", h.master.MaximumOverAllRateInKiloBytes()))

	restapi.RespondJSON(rw, h.rateLimits(), logger)
}

func (h *Handler) listRequests(rw http.ResponseWriter, r *http.Request) {
	entries := h.store.GetRequestEntries()
	res := make([]Request, 0, len(entries))
	for _, e := range entries {
		res = append(res, Request{ID: e.RequestID, RequestConfigSnapshot: e.Config.Snapshot()})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID.String() < res[j].ID.String() })
	restapi.RespondJSON(rw, res, h.loggerFrom(r))
}

func (h *Handler) getRequest(rw http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(rw, r)
	if !ok {
		return
	}
	cfg, found := h.store.Peek(id)
	if !found {
		restapi.RespondError(rw, http.StatusNotFound,
			restapi.NewError(ErrorDomain, restapi.ErrCodeNotFound, "Request is not tracked."), h.loggerFrom(r))
		return
	}
	restapi.RespondJSON(rw, Request{ID: id, RequestConfigSnapshot: cfg.Snapshot()}, h.loggerFrom(r))
}

func (h *Handler) cancelRequest(rw http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(rw, r)
	if !ok {
		return
	}
	cancelled := h.store.MarkRequestHasShallBeCancelled(id)
	if cancelled {
		h.loggerFrom(r).Info("upload cancellation requested", log.String("request_id", id.String()))
	}
	restapi.RespondJSON(rw, CancelResult{Cancelled: cancelled}, h.loggerFrom(r))
}

func (h *Handler) pauseRequest(rw http.ResponseWriter, r *http.Request) {
	h.changeRequest(rw, r, h.store.Pause)
}

func (h *Handler) resumeRequest(rw http.ResponseWriter, r *http.Request) {
	h.changeRequest(rw, r, h.store.Resume)
}

func (h *Handler) resetRequest(rw http.ResponseWriter, r *http.Request) {
	h.changeRequest(rw, r, h.store.Reset)
}

func (h *Handler) changeRequest(rw http.ResponseWriter, r *http.Request, change func(limiter.RequestID)) {
	id, ok := h.parseID(rw, r)
	if !ok {
		return
	}
	change(id)
	restapi.RespondJSON(rw, Request{ID: id, RequestConfigSnapshot: h.store.UploadProcessingConfiguration(id).Snapshot()},
		h.loggerFrom(r))
}

func (h *Handler) getClient(rw http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(rw, r)
	if !ok {
		return
	}
	requests := h.registry.ActiveRequests(id)
	if requests == nil {
		requests = []uuid.UUID{}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].String() < requests[j].String() })
	restapi.RespondJSON(rw, Client{ID: id, Active: len(requests) > 0, ActiveRequests: requests}, h.loggerFrom(r))
}

func (h *Handler) rateLimits() RateLimits {
	return RateLimits{
		MaximumRatePerClientInKiloBytes: h.master.MaximumRatePerClientInKiloBytes(),
		MaximumOverAllRateInKiloBytes:   h.master.MaximumOverAllRateInKiloBytes(),
		InstantRateInBytes:              h.master.InstantRateInBytes(),
	}
}

func (h *Handler) parseID(rw http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, urlParamID))
	if err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrorDomain, ErrCodeInvalidID, "ID must be a valid UUID."), h.loggerFrom(r))
		return uuid.Nil, false
	}
	return id, true
}

// loggerFrom prefers the request-scoped logger set by httpserver middlewares.
func (h *Handler) loggerFrom(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}
