package relay

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/echoes-app/demo-relay/internal/api"
	"github.com/echoes-app/demo-relay/internal/config"
	"github.com/echoes-app/demo-relay/internal/metrics"
	"github.com/echoes-app/demo-relay/internal/provider"
	"github.com/echoes-app/demo-relay/internal/quota"
)

// Handler serves the demo endpoints. For /api/chat the gates run in a fixed
// order — password auth and the per-IP rate limit as route middleware, then
// the daily quota and demo-expiry checks here — and any rejection
// short-circuits before the upstream call. The quota counter is incremented
// only after the provider succeeds.
type Handler struct {
	provider provider.Provider
	store    *quota.Store
	cfg      config.DemoConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(p provider.Provider, store *quota.Store, cfg config.DemoConfig) *Handler {
	return &Handler{
		provider: p,
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewValidationError("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError("Messages array is required and each message needs a valid role and content"))
		return
	}

	// Daily gate. Allow performs the lazy day reset, so a cross-midnight
	// request sees a zeroed counter.
	if !h.store.Allow() {
		metrics.GateRejectionsTotal.WithLabelValues("daily").Inc()
		api.HandleError(w, api.ErrDailyLimit)
		return
	}

	// Demo-expiry check runs after the quota gates so expired-demo
	// responses stay consistent with the gate ordering.
	if h.demoExpired() {
		metrics.GateRejectionsTotal.WithLabelValues("demo_expired").Inc()
		api.HandleError(w, api.ErrDemoExpired)
		return
	}

	messages := trimHistory(req.Messages, h.provider.MaxHistory())

	reply, err := h.provider.Complete(r.Context(), toProviderMessages(messages))
	if err != nil {
		slog.Error("upstream call failed", "provider", h.provider.Label(), "error", err)
		upstreamErr := api.ErrUpstream
		if h.cfg.Development {
			upstreamErr = upstreamErr.WithDetail(err.Error())
		}
		api.HandleError(w, upstreamErr)
		return
	}

	h.store.Increment()

	api.JSON(w, http.StatusOK, chatResponse{
		Message:           strings.TrimSpace(reply),
		IsDemoMode:        true,
		AIProvider:        h.provider.Label(),
		RequestsRemaining: h.store.Remaining(),
	})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		api.HandleError(w, api.NewValidationError("Password is required"))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Password)) != 1 {
		api.JSON(w, http.StatusUnauthorized, verifyRejection{
			Valid: false,
			Error: "Invalid password",
		})
		return
	}

	api.JSON(w, http.StatusOK, verifyResponse{
		Valid:             true,
		Message:           "Password verified. Welcome to the demo!",
		RequestsRemaining: h.store.Remaining(),
		AIProvider:        h.provider.Label(),
	})
}

// Health always returns 200. Reading the store triggers the lazy day reset
// but never consumes a slot.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		DemoActive:     !h.demoExpired(),
		RequestsToday:  h.store.Count(),
		DailyLimit:     h.store.Limit(),
		RemainingToday: h.store.Remaining(),
		AIProvider:     h.provider.Label(),
	})
}

// demoExpired reports whether the configured end date has passed. A zero
// end date means the demo never expires.
func (h *Handler) demoExpired() bool {
	return !h.cfg.EndDate.IsZero() && h.now().After(h.cfg.EndDate)
}
