package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type stubService struct {
	pingErr    error
	balance    map[string]int64
	balanceErr error
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) GetOverawardBalance(ctx context.Context, studentID int64) (map[string]int64, error) {
	return s.balance, s.balanceErr
}

func newTestServer(svc *stubService) *httptest.Server {
	h := NewHandler(svc, zap.NewNop())
	return httptest.NewServer(h.SetupRouter())
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"storage available", nil, http.StatusOK},
		{"storage unavailable", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&stubService{pingErr: tt.pingErr})
			defer server.Close()

			resp, err := http.Get(server.URL + "/healthz")
			if err != nil {
				t.Fatalf("request error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestGetOverawardBalance(t *testing.T) {
	server := newTestServer(&stubService{
		balance: map[string]int64{
			"CSLF": 50000,
			"BCSL": 12550,
		},
	})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/students/42/overawards")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var items []struct {
		Code    string  `json:"awardCode"`
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Code != "BCSL" || items[0].Balance != 125.50 {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Code != "CSLF" || items[1].Balance != 500.00 {
		t.Fatalf("items[1] = %+v", items[1])
	}
}

func TestGetOverawardBalance_InvalidID(t *testing.T) {
	server := newTestServer(&stubService{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/students/abc/overawards")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetOverawardBalance_StorageError(t *testing.T) {
	server := newTestServer(&stubService{balanceErr: errors.New("query failed")})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/students/42/overawards")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestNotFound(t *testing.T) {
	server := newTestServer(&stubService{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
