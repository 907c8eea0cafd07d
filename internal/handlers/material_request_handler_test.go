package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"vendfleet-backend/internal/logger"
	"vendfleet-backend/internal/middleware"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/repositories/memory"
	"vendfleet-backend/internal/services"
)

type testServer struct {
	router *mux.Router
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	h := NewMaterialRequestHandler(
		services.NewMaterialRequestService(store, logger.Nop()),
		services.NewMaterialRequestQueryService(store, logger.Nop()),
		services.NewOrderSheetService(store, logger.Nop()),
	)
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	// Tests pass the caller in X-Test-Org / X-Test-User instead of a token.
	api.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if org := req.Header.Get("X-Test-Org"); org != "" {
				actor := models.Actor{OrganizationID: org, UserID: req.Header.Get("X-Test-User")}
				req = req.WithContext(middleware.WithActor(req.Context(), actor))
			}
			next.ServeHTTP(w, req)
		})
	})
	h.RegisterRoutes(api)
	return &testServer{router: r, store: store}
}

func (s *testServer) do(t *testing.T, method, path, org, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if org != "" {
		req.Header.Set("X-Test-Org", org)
		req.Header.Set("X-Test-User", "user-1")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeRequest(t *testing.T, rec *httptest.ResponseRecorder) models.MaterialRequest {
	t.Helper()
	var mr models.MaterialRequest
	if err := json.NewDecoder(rec.Body).Decode(&mr); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rec.Body.String())
	}
	return mr
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

const createBody = `{"priority":"high","notes":"hall B","items":[{"product_id":"p1","product_name":"Cola 0.5l","quantity":10,"unit_price":"1000"},{"product_id":"p2","product_name":"Chips","quantity":5,"unit_price":"2000"}]}`

func TestMaterialRequestHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/material-requests", "org-1", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	mr := decodeRequest(t, rec)
	if mr.Status != models.StatusDraft || mr.TotalAmount.String() != "20000" {
		t.Fatalf("unexpected created request: %s %s", mr.Status, mr.TotalAmount)
	}
	base := "/api/material-requests/" + mr.ID

	steps := []struct {
		path   string
		body   string
		status models.MaterialRequestStatus
	}{
		{"/submit", "", models.StatusNew},
		{"/approve", `{"comment":"ok"}`, models.StatusApproved},
		{"/send", "", models.StatusSent},
		{"/payments", `{"amount":"5000","reference":"BANK-1"}`, models.StatusPartiallyPaid},
		{"/payments", `{"amount":"15000"}`, models.StatusPaid},
		{"/deliver", "", models.StatusDelivered},
		{"/complete", "", models.StatusCompleted},
	}
	for _, step := range steps {
		rec := s.do(t, http.MethodPost, base+step.path, "org-1", step.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", step.path, rec.Code, rec.Body.String())
		}
		if got := decodeRequest(t, rec).Status; got != step.status {
			t.Fatalf("%s: expected %s, got %s", step.path, step.status, got)
		}
	}

	rec = s.do(t, http.MethodGet, base+"/history", "org-1", "")
	var history []models.MaterialRequestHistory
	json.NewDecoder(rec.Body).Decode(&history)
	if len(history) != 8 {
		t.Errorf("Expected 8 history rows, got %d", len(history))
	}

	rec = s.do(t, http.MethodGet, base+"/payments", "org-1", "")
	var payments []models.MaterialRequestPayment
	json.NewDecoder(rec.Body).Decode(&payments)
	if len(payments) != 2 {
		t.Errorf("Expected 2 payments, got %d", len(payments))
	}

	rec = s.do(t, http.MethodGet, base+"/document.pdf", "org-1", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("document: expected PDF, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("document: body is not a PDF")
	}
}

func TestMaterialRequestHandler_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/material-requests", "org-1", createBody)
	mr := decodeRequest(t, rec)
	base := "/api/material-requests/" + mr.ID

	tests := []struct {
		name   string
		method string
		path   string
		org    string
		body   string
		status int
		code   string
	}{
		{"approve draft", http.MethodPost, base + "/approve", "org-1", "", http.StatusConflict, "INVALID_TRANSITION"},
		{"reject without reason", http.MethodPost, base + "/reject", "org-1", `{}`, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"malformed json", http.MethodPost, base + "/payments", "org-1", `{"amount":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"negative payment", http.MethodPost, base + "/payments", "org-1", `{"amount":"-1"}`, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"other tenant", http.MethodGet, base, "org-2", "", http.StatusNotFound, "NOT_FOUND"},
		{"unknown id", http.MethodGet, "/api/material-requests/does-not-exist", "org-1", "", http.StatusNotFound, "NOT_FOUND"},
		{"no caller", http.MethodGet, base, "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad page", http.MethodGet, "/api/material-requests?page=abc", "org-1", "", http.StatusBadRequest, "BAD_REQUEST"},
		{"bad status filter", http.MethodGet, "/api/material-requests?status=LOST", "org-1", "", http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"stale version", http.MethodPut, base, "org-1", `{"notes":"x","expected_version":99}`, http.StatusConflict, "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.org, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestMaterialRequestHandler_ListStatsAndDelete(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.do(t, http.MethodPost, "/api/material-requests", "org-1", createBody)
	}
	rec := s.do(t, http.MethodPost, "/api/material-requests", "org-1", createBody)
	last := decodeRequest(t, rec)
	s.do(t, http.MethodPost, "/api/material-requests/"+last.ID+"/submit", "org-1", "")

	rec = s.do(t, http.MethodGet, "/api/material-requests?limit=2&status=DRAFT", "org-1", "")
	var page models.MaterialRequestPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 2 || page.TotalPages != 2 {
		t.Errorf("Expected 3 drafts over 2 pages, got total=%d len=%d pages=%d", page.Total, len(page.Data), page.TotalPages)
	}

	rec = s.do(t, http.MethodGet, "/api/material-requests/stats", "org-1", "")
	var stats models.MaterialRequestStats
	json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Total != 4 || stats.Draft != 3 || stats.PendingApproval != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	rec = s.do(t, http.MethodGet, "/api/material-requests/pending-approvals", "org-1", "")
	var pending []models.MaterialRequest
	json.NewDecoder(rec.Body).Decode(&pending)
	if len(pending) != 1 || pending[0].ID != last.ID {
		t.Errorf("Expected the submitted request pending, got %d", len(pending))
	}

	rec = s.do(t, http.MethodDelete, "/api/material-requests/"+last.ID, "org-1", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete NEW: expected 409, got %d", rec.Code)
	}
	draft := page.Data[0]
	rec = s.do(t, http.MethodDelete, "/api/material-requests/"+draft.ID, "org-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete DRAFT: expected 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/material-requests/"+draft.ID, "org-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted request: expected 404, got %d", rec.Code)
	}
}
