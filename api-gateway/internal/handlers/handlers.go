package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aaronwang/community-auction/api-gateway/internal/service"
	"github.com/aaronwang/community-auction/shared/models"
)

// Handler contains HTTP request handlers
type Handler struct {
	auction  *service.Auction
	adminIDs map[int64]bool
}

// NewHandler creates a new HTTP handler
func NewHandler(auction *service.Auction, adminIDs []int64) *Handler {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Handler{
		auction:  auction,
		adminIDs: admins,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/phase", h.GetPhase).Methods("GET")
	api.HandleFunc("/items", h.SubmitItem).Methods("POST")
	api.HandleFunc("/items", h.ListItems).Methods("GET")
	api.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	api.HandleFunc("/items/{id}/quote", h.GetQuote).Methods("GET")
	api.HandleFunc("/items/{id}/bids", h.ListBids).Methods("GET")
	api.HandleFunc("/items/{id}/bid", h.PlaceBid).Methods("POST")
	api.HandleFunc("/items/{id}/withdraw", h.WithdrawItem).Methods("POST")
	api.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	api.HandleFunc("/users/{id}/items", h.GetUserItems).Methods("GET")
	api.HandleFunc("/users/{id}/winning", h.GetUserWinning).Methods("GET")

	// Admin routes; authorization is enforced here, not in the engine
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.adminOnly)
	admin.HandleFunc("/phase", h.GetPhase).Methods("GET")
	admin.HandleFunc("/phase/open", h.OpenAuction).Methods("POST")
	admin.HandleFunc("/phase/close-submissions", h.CloseSubmissions).Methods("POST")
	admin.HandleFunc("/phase/close-bidding", h.CloseBidding).Methods("POST")
	admin.HandleFunc("/items/{id}/decision", h.DecideItem).Methods("POST")
	admin.HandleFunc("/items/{id}/end", h.EndItem).Methods("POST")
	admin.HandleFunc("/items/{id}/messages", h.SetMessageRefs).Methods("PUT")
	admin.HandleFunc("/cleanup", h.StageCleanup).Methods("POST")
	admin.HandleFunc("/cleanup/{token}/confirm", h.ConfirmCleanup).Methods("POST")
	admin.HandleFunc("/cleanup/{token}/cancel", h.CancelCleanup).Methods("POST")
	admin.HandleFunc("/users/{id}/ban", h.BanUser).Methods("POST")
	admin.HandleFunc("/users/{id}/unban", h.UnbanUser).Methods("POST")

	// Middleware
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "api-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetPhase returns the auction phase flags
func (h *Handler) GetPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := h.auction.Phases.Current(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read auction phase")
		return
	}
	respondJSON(w, http.StatusOK, phase)
}

// SubmitItem accepts a finished item draft from the submission wizard
func (h *Handler) SubmitItem(w http.ResponseWriter, r *http.Request) {
	var draft models.ItemDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := h.auction.Submit(r.Context(), draft)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"item_id": item.ID,
		"status":  item.Status,
	})
}

// ListItems lists items, optionally filtered by ?status=
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	var statuses []models.ItemStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, models.ItemStatus(s))
	}

	items, err := h.auction.Items.List(r.Context(), statuses...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(items))
}

// GetItem retrieves one item
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.auction.Items.Get(r.Context(), itemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// GetQuote returns the current price and minimum next bid
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	quote, err := h.auction.Bidding.Quote(r.Context(), itemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// ListBids returns an item's bid history, ?order=amount (default) or time
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	order := models.BidOrderAmount
	if r.URL.Query().Get("order") == string(models.BidOrderTime) {
		order = models.BidOrderTime
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	bids, err := h.auction.Bidding.History(r.Context(), itemID, order)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nonNil(bids))
}

// PlaceBid handles bid placement requests
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	// Parse request body
	var bidReq models.BidRequest
	if err := json.NewDecoder(r.Body).Decode(&bidReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate request
	if bidReq.UserID == 0 {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	if bidReq.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "Bid amount must be positive")
		return
	}

	result, err := h.auction.PlaceBid(r.Context(), itemID, &bidReq)
	if err != nil {
		status, code, message := classify(err)
		response := &models.BidResponse{
			Success: false,
			Code:    code,
			Message: message,
			ItemID:  itemID,
			YourBid: bidReq.Amount,
		}
		var tooLow *service.BidTooLowError
		if errors.As(err, &tooLow) {
			response.CurrentPrice = tooLow.CurrentPrice
			response.MinimumBid = tooLow.Minimum
		}
		respondJSON(w, status, response)
		return
	}

	respondJSON(w, http.StatusCreated, &models.BidResponse{
		Success:      true,
		Message:      fmt.Sprintf("Your bid of %d on item %s has been placed!", result.Amount, result.ItemID),
		ItemID:       result.ItemID,
		CurrentPrice: result.Amount,
		MinimumBid:   result.MinimumNextBid,
		YourBid:      bidReq.Amount,
		IsHighest:    true,
	})
}

// WithdrawItem lets an owner cancel a pending item
func (h *Handler) WithdrawItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 {
		respondError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	itemID, ok := itemIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.auction.Items.Withdraw(r.Context(), itemID, body.UserID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// GetUser returns a user's counters
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.auction.Users.Get(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetUserItems lists a user's pending and approved items
func (h *Handler) GetUserItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	items, err := h.auction.Users.Items(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(items))
}

// GetUserWinning lists the items a user currently leads
func (h *Handler) GetUserWinning(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	items, err := h.auction.Users.Winning(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	respondJSON(w, http.StatusOK, nonNil(items))
}

// itemIDParam normalizes the {id} path value and rejects ids that cannot exist
func itemIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	itemID := service.NormalizeItemID(mux.Vars(r)["id"])
	if !service.ValidItemID(itemID) {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return "", false
	}
	return itemID, true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return userID, true
}

// classify maps engine errors to HTTP status, a stable code and a message
func classify(err error) (int, string, string) {
	var tooLow *service.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		return http.StatusUnprocessableEntity, "bid_too_low",
			fmt.Sprintf("Minimum bid increment is %d. Your bid must be at least %d.", tooLow.Increment, tooLow.Minimum)
	case errors.Is(err, service.ErrBiddingClosed):
		return http.StatusForbidden, "bidding_closed", "Bidding is currently closed."
	case errors.Is(err, service.ErrSubmissionsClosed):
		return http.StatusForbidden, "submissions_closed", "Submissions are currently closed."
	case errors.Is(err, service.ErrBidderBanned):
		return http.StatusForbidden, "bidder_banned", "You are banned from bidding."
	case errors.Is(err, service.ErrSelfBid):
		return http.StatusForbidden, "self_bid_forbidden", "You cannot bid on your own item."
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, "not_owner", "Only the owner can withdraw this item."
	case errors.Is(err, service.ErrItemNotBiddable):
		return http.StatusConflict, "item_not_biddable", "Item not found or not approved for bidding."
	case errors.Is(err, service.ErrAlreadyDecided):
		return http.StatusConflict, "already_decided", err.Error()
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, service.ErrItemNotFound):
		return http.StatusNotFound, "not_found", "Item not found."
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "User not found."
	case errors.Is(err, service.ErrCleanupNotStaged):
		return http.StatusNotFound, "cleanup_not_staged", "No cleanup is waiting for this token."
	case errors.Is(err, service.ErrInvalidDraft), errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, service.ErrIDSpaceExhausted):
		return http.StatusServiceUnavailable, "id_space_exhausted", "No free item ids left."
	case errors.Is(err, service.ErrBidProcessingFailed):
		return http.StatusInternalServerError, "bid_processing_failed",
			"An error occurred while processing your bid. Please try again."
	}
	return http.StatusInternalServerError, "processing_failed", "An error occurred. Please try again."
}

func respondServiceError(w http.ResponseWriter, err error) {
	status, code, message := classify(err)
	respondJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// nonNil keeps empty listings as [] instead of null
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		fmt.Printf("[HTTP] %s %s %s %s\n", time.Now().Format(time.RFC3339), r.Method, r.RequestURI, duration.String())
	})
}

// corsMiddleware adds CORS headers (for development)
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
