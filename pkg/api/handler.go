// Package api provides the HTTP endpoints that synchronize user-initiated
// subscription changes between the payment provider and the profile store:
// profile bootstrap, subscription status, plan change and unsubscribe.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mealplanhq/subgate/pkg/subgate"
)

// Handler provides the subscription API endpoints.
type Handler struct {
	config Config
}

// CreateProfile handles POST /create-profile: first-login bootstrap of the
// profile row. Idempotent; a pre-existing row short-circuits insertion.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.config.GetIdentity(r)
	if !ok {
		h.writeError(w, r, http.StatusNotFound, fmt.Errorf("user not found"))
		return
	}
	if identity.Email == "" {
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("user does not have an email address"))
		return
	}

	ctx := r.Context()

	_, err := h.config.Store.GetProfile(ctx, identity.UserID)
	if err == nil {
		h.writeJSON(w, http.StatusOK, messageResponse{Message: "Profile already exists."})
		return
	}
	if !errors.Is(err, subgate.ErrProfileNotFound) {
		h.config.Logger.Error("profile lookup failed",
			subgate.F("user_id", identity.UserID), subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to check existing profile"))
		return
	}

	if err := h.config.Store.CreateProfile(ctx, identity.UserID, identity.Email); err != nil {
		// A concurrent first-request may have inserted the row between the
		// lookup and the insert; the unique constraint makes that benign.
		if errors.Is(err, subgate.ErrProfileExists) {
			h.writeJSON(w, http.StatusOK, messageResponse{Message: "Profile already exists."})
			return
		}
		h.config.Logger.Error("profile insert failed",
			subgate.F("user_id", identity.UserID), subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to create profile"))
		return
	}

	h.config.Logger.Info("profile created", subgate.F("user_id", identity.UserID))
	h.writeJSON(w, http.StatusCreated, messageResponse{Message: "Profile created successfully."})
}

// SubscriptionStatus handles GET /subscription-status: returns the caller's
// profile, or a null subscription when no row exists yet.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.config.GetIdentity(r)
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}

	profile, err := h.config.Store.GetProfile(r.Context(), identity.UserID)
	if errors.Is(err, subgate.ErrProfileNotFound) {
		h.writeJSON(w, http.StatusOK, statusResponse{Subscription: nil})
		return
	}
	if err != nil {
		h.config.Logger.Error("profile lookup failed",
			subgate.F("user_id", identity.UserID), subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to fetch subscription details"))
		return
	}

	h.writeJSON(w, http.StatusOK, statusResponse{Subscription: profile})
}

// ChangePlan handles POST /change-plan: switches the caller's live
// subscription to the requested plan and writes the result back to the
// profile store. There is no rollback of a provider-side change if the
// store write fails afterwards; the next webhook delivery reconciles.
func (h *Handler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.config.GetIdentity(r)
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	if h.config.Billing == nil {
		h.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("billing provider not configured"))
		return
	}

	var req changePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPlan == "" {
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("new plan is required"))
		return
	}

	ctx := r.Context()

	profile, err := h.config.Store.GetProfile(ctx, identity.UserID)
	if err != nil || !profile.HasSubscription() {
		h.writeError(w, r, http.StatusBadRequest, subgate.ErrNoActiveSubscription)
		return
	}

	updated, err := h.config.Billing.ChangePlan(ctx, profile.StripeSubscriptionID, req.NewPlan)
	if err != nil {
		h.config.Logger.Error("plan change failed",
			subgate.F("user_id", identity.UserID),
			subgate.F("subscription_id", profile.StripeSubscriptionID),
			subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	// The subscription id can change when the provider replaces the
	// subscription during the update; persist whatever came back.
	if err := h.config.Store.UpdatePlan(ctx, identity.UserID, updated.ID, req.NewPlan); err != nil {
		h.config.Logger.Error("plan write-back failed",
			subgate.F("user_id", identity.UserID), subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	h.config.Logger.Info("plan changed",
		subgate.F("user_id", identity.UserID), subgate.F("plan", req.NewPlan))
	h.writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: updated})
}

// Unsubscribe handles POST /unsubscribe: schedules a cancel-at-period-end
// with the payment provider and marks the profile cancel_pending. The
// stored subscription id is retained and the profile stays active until the
// provider's deletion event arrives at period end.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.config.GetIdentity(r)
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
		return
	}
	if h.config.Billing == nil {
		h.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("billing provider not configured"))
		return
	}

	ctx := r.Context()

	profile, err := h.config.Store.GetProfile(ctx, identity.UserID)
	if err != nil || !profile.HasSubscription() {
		h.writeError(w, r, http.StatusBadRequest, subgate.ErrNoActiveSubscription)
		return
	}

	canceled, err := h.config.Billing.CancelAtPeriodEnd(ctx, profile.StripeSubscriptionID)
	if err != nil {
		h.config.Logger.Error("cancellation failed",
			subgate.F("user_id", identity.UserID),
			subgate.F("subscription_id", profile.StripeSubscriptionID),
			subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if err := h.config.Store.MarkCancelPending(ctx, identity.UserID); err != nil {
		h.config.Logger.Error("cancel-pending write-back failed",
			subgate.F("user_id", identity.UserID), subgate.F("error", err.Error()))
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	h.config.Logger.Info("subscription cancellation scheduled",
		subgate.F("user_id", identity.UserID),
		subgate.F("subscription_id", profile.StripeSubscriptionID))
	h.writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: canceled})
}

// Routes returns an http.Handler serving the four API endpoints plus the
// webhook endpoint when a billing provider is configured.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /create-profile", h.CreateProfile)
	mux.HandleFunc("GET /subscription-status", h.SubscriptionStatus)
	mux.HandleFunc("POST /change-plan", h.ChangePlan)
	mux.HandleFunc("POST /unsubscribe", h.Unsubscribe)
	if h.config.Billing != nil {
		mux.Handle("POST /stripe-webhook", h.config.Billing.WebhookHandler())
	}
	return mux
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response already started; nothing left to do.
		return
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	h.writeJSON(w, code, errorResponse{Error: err.Error()})
}
