package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"nowait/queue-service/internal/cache"
	"nowait/queue-service/internal/engine"
	"nowait/queue-service/internal/models"

	"github.com/google/uuid"
)

// Service is the command-and-projection contract the display layer
// consumes. The engine registry implements it.
type Service interface {
	Register(ctx context.Context, locationID string, input engine.RegisterInput) (models.Token, error)
	TriggerEmergency(ctx context.Context, locationID string) (models.Token, error)
	ApproveBooking(ctx context.Context, locationID, tokenID string) (models.Token, error)
	CallNext(ctx context.Context, locationID string) (models.Token, error)
	CompleteSession(ctx context.Context, locationID, notes string) (models.Token, error)
	MarkSkipped(ctx context.Context, locationID, tokenID string) (models.Token, error)
	CancelToken(ctx context.Context, locationID, tokenID string) (models.Token, error)
	MarkArrived(ctx context.Context, locationID, tokenID string) (models.Token, error)
	SetPaid(ctx context.Context, locationID, tokenID string, paid bool) (models.Token, error)
	Snapshot(locationID string) (engine.Snapshot, error)
	Position(locationID, tokenID string) (engine.Position, error)
	Capacity(locationID string) (used, max int, full bool, err error)
	ListEvents(locationID, tokenID string) ([]engine.TokenEvent, error)
	AddLocation(location models.Location) error
	Locations() []models.Location
}

type Options struct {
	Cache       cache.Cache
	SnapshotTTL time.Duration
}

type Handler struct {
	service     Service
	cache       cache.Cache
	snapshotTTL time.Duration
}

func NewHandler(service Service, options Options) *Handler {
	ttl := options.SnapshotTTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Handler{
		service:     service,
		cache:       options.Cache,
		snapshotTTL: ttl,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/actions/call-next", h.handleCallNext)
	mux.HandleFunc("/api/tokens/actions/complete", h.handleComplete)
	mux.HandleFunc("/api/tokens/actions/emergency", h.handleEmergency)
	mux.HandleFunc("/api/tokens/", h.handleTokenActions)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/position", h.handlePosition)
	mux.HandleFunc("/api/queue/capacity", h.handleCapacity)
	mux.HandleFunc("/api/locations", h.handleLocations)
	return mux
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	LocationID    string `json:"location_id"`
	Contact       string `json:"contact"`
	Name          string `json:"name"`
	Channel       string `json:"channel"`
	Emergency     bool   `json:"emergency"`
	Priority      bool   `json:"priority"`
	Paid          bool   `json:"paid"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.LocationID = strings.TrimSpace(req.LocationID)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Name = strings.TrimSpace(req.Name)
	req.Channel = strings.TrimSpace(req.Channel)

	if req.LocationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
		return
	}
	if req.Channel != "" && req.Channel != models.ChannelWalkIn && req.Channel != models.ChannelRemote {
		writeError(w, http.StatusBadRequest, "invalid_request", "channel must be walkin or remote")
		return
	}
	if !req.Emergency {
		if req.Contact == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "contact is required")
			return
		}
		if !isValidPhone(req.Contact) {
			writeError(w, http.StatusBadRequest, "invalid_request", "contact must be 8-16 digits")
			return
		}
	}

	token, err := h.service.Register(r.Context(), req.LocationID, engine.RegisterInput{
		Contact:       req.Contact,
		Name:          req.Name,
		Channel:       req.Channel,
		Emergency:     req.Emergency,
		Priority:      req.Priority,
		Paid:          req.Paid,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidate(r.Context(), req.LocationID)
	writeJSON(w, http.StatusOK, token)
}

type locationRequest struct {
	LocationID string `json:"location_id"`
	Notes      string `json:"notes"`
}

func (h *Handler) decodeLocationRequest(w http.ResponseWriter, r *http.Request) (locationRequest, bool) {
	var req locationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return locationRequest{}, false
	}
	req.LocationID = strings.TrimSpace(req.LocationID)
	if req.LocationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
		return locationRequest{}, false
	}
	return req, true
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := h.decodeLocationRequest(w, r)
	if !ok {
		return
	}

	token, err := h.service.CallNext(r.Context(), req.LocationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidate(r.Context(), req.LocationID)
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := h.decodeLocationRequest(w, r)
	if !ok {
		return
	}

	token, err := h.service.CompleteSession(r.Context(), req.LocationID, req.Notes)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidate(r.Context(), req.LocationID)
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleEmergency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	req, ok := h.decodeLocationRequest(w, r)
	if !ok {
		return
	}

	token, err := h.service.TriggerEmergency(r.Context(), req.LocationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidate(r.Context(), req.LocationID)
	writeJSON(w, http.StatusOK, token)
}

type payRequest struct {
	LocationID string `json:"location_id"`
	Paid       bool   `json:"paid"`
}

func (h *Handler) handleTokenActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tokens/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 2 && parts[1] == "events" {
		h.handleTokenEvents(w, r, parts[0])
		return
	}
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tokenID := parts[0]
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	if parts[2] == "pay" {
		var req payRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.LocationID = strings.TrimSpace(req.LocationID)
		if req.LocationID == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
			return
		}
		token, err := h.service.SetPaid(r.Context(), req.LocationID, tokenID, req.Paid)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		h.invalidate(r.Context(), req.LocationID)
		writeJSON(w, http.StatusOK, token)
		return
	}

	req, ok := h.decodeLocationRequest(w, r)
	if !ok {
		return
	}

	var token models.Token
	var err error
	switch parts[2] {
	case "approve":
		token, err = h.service.ApproveBooking(r.Context(), req.LocationID, tokenID)
	case "skip":
		token, err = h.service.MarkSkipped(r.Context(), req.LocationID, tokenID)
	case "cancel":
		token, err = h.service.CancelToken(r.Context(), req.LocationID, tokenID)
	case "arrive":
		token, err = h.service.MarkArrived(r.Context(), req.LocationID, tokenID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.invalidate(r.Context(), req.LocationID)
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleTokenEvents(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if locationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
		return
	}
	if !isValidUUID(tokenID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	events, err := h.service.ListEvents(locationID, tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if locationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
		return
	}

	key := cache.SnapshotKey(locationID)
	if h.cache != nil {
		if data, err := h.cache.Get(r.Context(), key); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	snap, err := h.service.Snapshot(locationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if h.cache != nil {
		_ = h.cache.Set(r.Context(), key, payload, h.snapshotTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	tokenID := strings.TrimSpace(r.URL.Query().Get("token_id"))
	if locationID == "" || tokenID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id and token_id are required")
		return
	}

	position, err := h.service.Position(locationID, tokenID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

type capacityResponse struct {
	LocationID string `json:"location_id"`
	Used       int    `json:"used"`
	MaxOPD     int    `json:"max_opd"`
	Full       bool   `json:"full"`
}

func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	locationID := strings.TrimSpace(r.URL.Query().Get("location_id"))
	if locationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location_id is required")
		return
	}

	used, max, full, err := h.service.Capacity(locationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, capacityResponse{
		LocationID: locationID,
		Used:       used,
		MaxOPD:     max,
		Full:       full,
	})
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.service.Locations())
	case http.MethodPost:
		var loc models.Location
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&loc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		loc.LocationID = strings.TrimSpace(loc.LocationID)
		loc.Name = strings.TrimSpace(loc.Name)
		if loc.LocationID == "" || loc.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "location_id and name are required")
			return
		}
		if err := h.service.AddLocation(loc); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, loc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) invalidate(ctx context.Context, locationID string) {
	if h.cache == nil {
		return
	}
	_ = h.cache.Delete(ctx, cache.SnapshotKey(locationID))
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, engine.ErrLocationNotFound):
		return http.StatusNotFound, "location_not_found", "location not found"
	case errors.Is(err, engine.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "token state does not allow this action"
	case errors.Is(err, engine.ErrLocationFull):
		return http.StatusConflict, "location_full", "slot has reached max OPD"
	case errors.Is(err, engine.ErrNoToken):
		return http.StatusConflict, "queue_empty", "no tokens available"
	case errors.Is(err, engine.ErrNoSession):
		return http.StatusConflict, "no_active_session", "no session in progress"
	case errors.Is(err, engine.ErrLocationExists):
		return http.StatusConflict, "location_exists", "location already exists"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
