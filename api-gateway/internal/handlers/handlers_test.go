package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aaronwang/community-auction/api-gateway/internal/service"
	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

const testAdmin = int64(1)

func setupServer(t *testing.T) (*httptest.Server, *service.Auction) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auction.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	auction := service.NewAuction(s, nil, nil)
	srv := httptest.NewServer(NewHandler(auction, []int64{testAdmin}).SetupRoutes())
	t.Cleanup(func() {
		srv.Close()
		auction.Wait()
		s.Close()
	})
	return srv, auction
}

func do(t *testing.T, srv *httptest.Server, method, path string, body interface{}, admin bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set(adminIDHeader, fmt.Sprint(testAdmin))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// approvedItemID opens the auction, submits and approves an item over HTTP
func approvedItemID(t *testing.T, srv *httptest.Server, base int64) string {
	t.Helper()
	if resp := do(t, srv, "POST", "/api/v1/admin/phase/open", nil, true); resp.StatusCode != http.StatusOK {
		t.Fatalf("open status = %d, want 200", resp.StatusCode)
	}

	resp := do(t, srv, "POST", "/api/v1/items", models.ItemDraft{
		OwnerID:     100,
		OwnerName:   "Ash",
		Kind:        models.ItemKindTM,
		DisplayName: "TM26 Earthquake",
		BasePrice:   base,
	}, false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ItemID string `json:"item_id"`
	}
	decode(t, resp, &created)

	resp = do(t, srv, "POST", "/api/v1/admin/items/"+created.ItemID+"/decision",
		map[string]string{"decision": "approve"}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d, want 200", resp.StatusCode)
	}
	return created.ItemID
}

func TestHealthCheck(t *testing.T) {
	srv, _ := setupServer(t)
	resp := do(t, srv, "GET", "/health", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv, _ := setupServer(t)

	resp := do(t, srv, "POST", "/api/v1/admin/phase/open", nil, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("no header status = %d, want 403", resp.StatusCode)
	}

	req, _ := http.NewRequest("POST", srv.URL+"/api/v1/admin/phase/open", nil)
	req.Header.Set(adminIDHeader, "999")
	stranger, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	stranger.Body.Close()
	if stranger.StatusCode != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", stranger.StatusCode)
	}
}

func TestSubmitWhileClosed(t *testing.T) {
	srv, _ := setupServer(t)
	resp := do(t, srv, "POST", "/api/v1/items", models.ItemDraft{
		OwnerID:     100,
		Kind:        models.ItemKindPokemon,
		DisplayName: "Mew",
		BasePrice:   1000,
	}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["code"] != "submissions_closed" {
		t.Errorf("code = %q, want submissions_closed", body["code"])
	}
}

func TestPlaceBidResponses(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 25000)
	path := "/api/v1/items/" + itemID + "/bid"

	resp := do(t, srv, "POST", path, models.BidRequest{UserID: 7, Name: "Misty", Amount: 26500}, false)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("too low status = %d, want 422", resp.StatusCode)
	}
	var rejected models.BidResponse
	decode(t, resp, &rejected)
	if rejected.Success || rejected.MinimumBid != 27000 || rejected.CurrentPrice != 25000 || rejected.Code != "bid_too_low" {
		t.Errorf("rejected = %+v, want minimum 27000 current 25000", rejected)
	}

	resp = do(t, srv, "POST", path, models.BidRequest{UserID: 7, Name: "Misty", Amount: 27000}, false)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("accepted status = %d, want 201", resp.StatusCode)
	}
	var accepted models.BidResponse
	decode(t, resp, &accepted)
	if !accepted.Success || accepted.CurrentPrice != 27000 || accepted.MinimumBid != 29000 {
		t.Errorf("accepted = %+v, want price 27000 next 29000", accepted)
	}

	resp = do(t, srv, "POST", path, models.BidRequest{UserID: 100, Amount: 90000}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("self bid status = %d, want 403", resp.StatusCode)
	}

	resp = do(t, srv, "POST", "/api/v1/items/Q0000/bid", models.BidRequest{UserID: 7, Amount: 90000}, false)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("missing item status = %d, want 409", resp.StatusCode)
	}

	resp = do(t, srv, "POST", path, models.BidRequest{UserID: 7, Amount: 0}, false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero amount status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, srv, "GET", "/api/v1/items/"+itemID+"/bids?order=time", nil, false)
	var bids []models.Bid
	decode(t, resp, &bids)
	if len(bids) != 1 || bids[0].Amount != 27000 {
		t.Errorf("bids = %+v, want one of 27000", bids)
	}
}

func TestCloseBiddingEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 10000)

	do(t, srv, "POST", "/api/v1/items/"+itemID+"/bid", models.BidRequest{UserID: 7, Amount: 11000}, false)
	do(t, srv, "POST", "/api/v1/items/"+itemID+"/bid", models.BidRequest{UserID: 8, Amount: 12000}, false)

	resp := do(t, srv, "POST", "/api/v1/admin/phase/close-bidding", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Closed []models.ClosedItem `json:"closed"`
		Count  int                 `json:"count"`
	}
	decode(t, resp, &body)
	if body.Count != 1 || body.Closed[0].WinningAmount != 12000 || body.Closed[0].WinnerID != 8 {
		t.Errorf("close response = %+v, want one item won by 8 for 12000", body)
	}

	resp = do(t, srv, "POST", "/api/v1/items/"+itemID+"/bid", models.BidRequest{UserID: 9, Amount: 20000}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("bid after close status = %d, want 403", resp.StatusCode)
	}
}

func TestMalformedItemIDs(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 1000)

	tests := []struct {
		method string
		path   string
		body   interface{}
		admin  bool
	}{
		{"GET", "/api/v1/items/zz", nil, false},
		{"GET", "/api/v1/items/A12345/quote", nil, false},
		{"GET", "/api/v1/items/1A234/bids", nil, false},
		{"POST", "/api/v1/items/abc/bid", models.BidRequest{UserID: 7, Amount: 5000}, false},
		{"POST", "/api/v1/items/AB123/withdraw", map[string]int64{"user_id": 100}, false},
		{"POST", "/api/v1/admin/items/12345/decision", map[string]string{"decision": "approve"}, true},
		{"POST", "/api/v1/admin/items/A-123/end", nil, true},
	}

	for _, tt := range tests {
		resp := do(t, srv, tt.method, tt.path, tt.body, tt.admin)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", tt.method, tt.path, resp.StatusCode)
		}
	}

	// Lowercase ids typed by users still resolve
	resp := do(t, srv, "GET", "/api/v1/items/"+strings.ToLower(itemID), nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("lowercase id status = %d, want 200", resp.StatusCode)
	}
}

func TestDecisionConflicts(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 1000)

	resp := do(t, srv, "POST", "/api/v1/admin/items/"+itemID+"/decision", map[string]string{"decision": "reject"}, true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second decision status = %d, want 409", resp.StatusCode)
	}

	resp = do(t, srv, "POST", "/api/v1/admin/items/Q0000/decision", map[string]string{"decision": "approve"}, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, srv, "POST", "/api/v1/admin/items/"+itemID+"/decision", map[string]string{"decision": "maybe"}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad decision status = %d, want 400", resp.StatusCode)
	}
}

func TestCleanupEndpoints(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 1000)
	do(t, srv, "POST", "/api/v1/admin/items/"+itemID+"/end", nil, true)

	resp := do(t, srv, "POST", "/api/v1/admin/cleanup/nope/confirm", nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown token status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, srv, "POST", "/api/v1/admin/cleanup", nil, true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("stage status = %d, want 202", resp.StatusCode)
	}
	var staged map[string]string
	decode(t, resp, &staged)

	resp = do(t, srv, "POST", "/api/v1/admin/cleanup/"+staged["token"]+"/confirm", nil, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200", resp.StatusCode)
	}
	var result map[string]int64
	decode(t, resp, &result)
	if result["items_deleted"] != 1 {
		t.Errorf("items deleted = %d, want 1", result["items_deleted"])
	}

	resp = do(t, srv, "GET", "/api/v1/items/"+itemID, nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cleaned item status = %d, want 404", resp.StatusCode)
	}
}

func TestUserEndpoints(t *testing.T) {
	srv, _ := setupServer(t)
	itemID := approvedItemID(t, srv, 1000)

	if resp := do(t, srv, "GET", "/api/v1/users/7", nil, false); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", resp.StatusCode)
	}
	if resp := do(t, srv, "GET", "/api/v1/users/abc", nil, false); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad user id status = %d, want 400", resp.StatusCode)
	}

	resp := do(t, srv, "POST", "/api/v1/admin/users/7/ban", map[string]string{"reason": "spam"}, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("ban status = %d, want 204", resp.StatusCode)
	}
	resp = do(t, srv, "POST", "/api/v1/items/"+itemID+"/bid", models.BidRequest{UserID: 7, Amount: 5000}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("banned bid status = %d, want 403", resp.StatusCode)
	}

	do(t, srv, "POST", "/api/v1/admin/users/7/unban", nil, true)
	do(t, srv, "POST", "/api/v1/items/"+itemID+"/bid", models.BidRequest{UserID: 7, Amount: 5000}, false)

	resp = do(t, srv, "GET", "/api/v1/users/7/winning", nil, false)
	var winning []models.Item
	decode(t, resp, &winning)
	if len(winning) != 1 || winning[0].ID != itemID {
		t.Errorf("winning = %+v, want [%s]", winning, itemID)
	}

	resp = do(t, srv, "GET", "/api/v1/users/100/items", nil, false)
	var items []models.Item
	decode(t, resp, &items)
	if len(items) != 1 {
		t.Errorf("seller items = %d, want 1", len(items))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.BidTooLowError{Minimum: 2000}, http.StatusUnprocessableEntity},
		{service.ErrBiddingClosed, http.StatusForbidden},
		{service.ErrBidderBanned, http.StatusForbidden},
		{service.ErrSelfBid, http.StatusForbidden},
		{service.ErrItemNotBiddable, http.StatusConflict},
		{&service.AlreadyDecidedError{ItemID: "A0001", Status: "approved"}, http.StatusConflict},
		{service.ErrItemNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: boom", service.ErrBidProcessingFailed), http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _, _ := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
