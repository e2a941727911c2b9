package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creatorships/dashboard/internal/dashboard"
	"github.com/creatorships/dashboard/internal/model"
)

// mockDashboardService はDashboardServiceInterfaceのモック実装。
type mockDashboardService struct {
	err error
}

func (m *mockDashboardService) Overview(context.Context, string) (*dashboard.Overview, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dashboard.Overview{ActiveCampaigns: 1, TotalCampaigns: 3, CreditsRemaining: 8, UnreadMessages: 2}, nil
}

func (m *mockDashboardService) Statistics(context.Context, string) (*dashboard.Statistics, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dashboard.Statistics{
		RevealsPerDay: []dashboard.DayCount{{Date: "2026-10-16", Count: 2}},
		TotalReveals:  2,
	}, nil
}

func (m *mockDashboardService) Report(context.Context, string) (*dashboard.Report, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dashboard.Report{
		ByStatus:    []dashboard.StatusReport{{Status: model.CampaignStatusActive, Campaigns: 1, Budget: 1000}},
		TotalBudget: 1000,
	}, nil
}

func TestDashboardHandler_Panels(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{})

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		key     string
		want    string
	}{
		{"overview", h.Overview, "/api/dashboard/overview", "unread_messages", "2"},
		{"statistics", h.Statistics, "/api/dashboard/statistics", "total_reveals", "2"},
		{"reports", h.Reports, "/api/dashboard/reports", "total_budget", "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUserID(httptest.NewRequest(http.MethodGet, tt.path, nil), "user-1")
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			var body map[string]json.RawMessage
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if string(body[tt.key]) != tt.want {
				t.Errorf("%s = %s, want %s", tt.key, body[tt.key], tt.want)
			}
		})
	}
}

func TestDashboardHandler_BackendError(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{err: errors.New("connection refused")})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/dashboard/overview", nil), "user-1")
	w := httptest.NewRecorder()

	h.Overview(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
