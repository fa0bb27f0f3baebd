package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aaronwang/community-auction/api-gateway/internal/service"
	"github.com/aaronwang/community-auction/shared/models"
)

// adminIDHeader carries the caller's user id on admin routes
const adminIDHeader = "X-Admin-ID"

// adminOnly rejects requests whose X-Admin-ID is not a configured admin
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(adminIDHeader), 10, 64)
		if err != nil || !h.adminIDs[id] {
			fmt.Printf("[ADMIN] Rejected %s %s from %q\n", r.Method, r.URL.Path, r.Header.Get(adminIDHeader))
			respondError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func adminIdentity(r *http.Request) models.Identity {
	id, _ := strconv.ParseInt(r.Header.Get(adminIDHeader), 10, 64)
	return models.Identity{ID: id, Name: r.Header.Get("X-Admin-Name")}
}

// OpenAuction opens submissions and bidding
func (h *Handler) OpenAuction(w http.ResponseWriter, r *http.Request) {
	phase, err := h.auction.Phases.OpenSubmissionsAndBidding(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, phase)
}

// CloseSubmissions stops new submissions
func (h *Handler) CloseSubmissions(w http.ResponseWriter, r *http.Request) {
	phase, err := h.auction.Phases.CloseSubmissions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, phase)
}

// CloseBidding stops bidding and settles every item holding a bid
func (h *Handler) CloseBidding(w http.ResponseWriter, r *http.Request) {
	closed, err := h.auction.Phases.CloseBidding(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"closed": nonNil(closed),
		"count":  len(closed),
	})
}

// DecideItem approves or rejects a pending item
func (h *Handler) DecideItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Decision service.Decision `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Decision != service.DecisionApprove && body.Decision != service.DecisionReject {
		respondError(w, http.StatusBadRequest, "Decision must be approve or reject")
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.auction.Items.Decide(r.Context(), itemID, body.Decision, adminIdentity(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// EndItem ends an approved item that has no bids
func (h *Handler) EndItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.auction.Items.End(r.Context(), itemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// SetMessageRefs stores transport message ids for an item
func (h *Handler) SetMessageRefs(w http.ResponseWriter, r *http.Request) {
	var refs models.MessageRefs
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	if err := h.auction.Items.SetMessageRefs(r.Context(), itemID, refs); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StageCleanup issues a token that must be confirmed before terminal items are deleted
func (h *Handler) StageCleanup(w http.ResponseWriter, r *http.Request) {
	token, expires, err := h.auction.Items.StageCleanup(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
}

// ConfirmCleanup deletes terminal items and their bids
func (h *Handler) ConfirmCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.auction.Items.ConfirmCleanup(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{
		"items_deleted": result.Items,
		"bids_deleted":  result.Bids,
	})
}

// CancelCleanup discards a staged cleanup
func (h *Handler) CancelCleanup(w http.ResponseWriter, r *http.Request) {
	if err := h.auction.Items.CancelCleanup(r.Context(), mux.Vars(r)["token"]); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BanUser blocks a user from bidding
func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// An empty body is a ban without a reason
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := h.auction.Users.Ban(r.Context(), userID, body.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnbanUser lifts a ban
func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.auction.Users.Unban(r.Context(), userID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
