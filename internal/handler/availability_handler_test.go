package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/calendar"
	"github.com/hitoshi/availcal/internal/config"
	"github.com/hitoshi/availcal/internal/model"
)

// mockCalendarService はテスト用のCalendarServiceInterfaceモック。
type mockCalendarService struct {
	sharedAvailabilityFunc func(ctx context.Context, quorum int) (*calendar.SharedResult, error)
	participantDatesFunc   func(ctx context.Context, name string) ([]model.Day, error)
	replaceDatesFunc       func(ctx context.Context, name string, rawDates []any) ([]model.Day, error)
	addDateFunc            func(ctx context.Context, name string, raw any) (model.Day, error)
	removeDateFunc         func(ctx context.Context, name string, raw any) (model.Day, error)
	importDatesFunc        func(ctx context.Context, name string, days []model.Day) ([]model.Day, error)
	watchFunc              func() (string, <-chan struct{})
	unwatchFunc            func(handle string)
	cal                    *config.Calendar
}

func (m *mockCalendarService) SharedAvailability(ctx context.Context, quorum int) (*calendar.SharedResult, error) {
	if m.sharedAvailabilityFunc != nil {
		return m.sharedAvailabilityFunc(ctx, quorum)
	}
	return &calendar.SharedResult{Dates: []model.Day{}, Quorum: quorum}, nil
}

func (m *mockCalendarService) ParticipantDates(ctx context.Context, name string) ([]model.Day, error) {
	if m.participantDatesFunc != nil {
		return m.participantDatesFunc(ctx, name)
	}
	return []model.Day{}, nil
}

func (m *mockCalendarService) ReplaceDates(ctx context.Context, name string, rawDates []any) ([]model.Day, error) {
	if m.replaceDatesFunc != nil {
		return m.replaceDatesFunc(ctx, name, rawDates)
	}
	return []model.Day{}, nil
}

func (m *mockCalendarService) AddDate(ctx context.Context, name string, raw any) (model.Day, error) {
	if m.addDateFunc != nil {
		return m.addDateFunc(ctx, name, raw)
	}
	return 0, nil
}

func (m *mockCalendarService) RemoveDate(ctx context.Context, name string, raw any) (model.Day, error) {
	if m.removeDateFunc != nil {
		return m.removeDateFunc(ctx, name, raw)
	}
	return 0, nil
}

func (m *mockCalendarService) ImportDates(ctx context.Context, name string, days []model.Day) ([]model.Day, error) {
	if m.importDatesFunc != nil {
		return m.importDatesFunc(ctx, name, days)
	}
	return days, nil
}

func (m *mockCalendarService) Participants() []model.Participant {
	return m.Calendar().Participants
}

func (m *mockCalendarService) Calendar() *config.Calendar {
	if m.cal != nil {
		return m.cal
	}
	return defaultTestCalendar()
}

func (m *mockCalendarService) Watch() (string, <-chan struct{}) {
	if m.watchFunc != nil {
		return m.watchFunc()
	}
	return "handle", make(chan struct{})
}

func (m *mockCalendarService) Unwatch(handle string) {
	if m.unwatchFunc != nil {
		m.unwatchFunc(handle)
	}
}

var _ CalendarServiceInterface = (*mockCalendarService)(nil)

func mustDay(t *testing.T, s string) model.Day {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("invalid test date %q: %v", s, err)
	}
	return model.DayFromTime(parsed)
}

func defaultTestCalendar() *config.Calendar {
	min, _ := time.Parse("2006-01-02", "2025-05-01")
	max, _ := time.Parse("2006-01-02", "2025-06-30")
	return &config.Calendar{
		AppName: "テストカレンダー",
		Participants: []model.Participant{
			{Name: "Josh", Color: "#ff0000"},
			{Name: "Karen", Color: "#00ff00"},
		},
		MinDate:       model.DayFromTime(min),
		MaxDate:       model.DayFromTime(max),
		DefaultQuorum: 2,
		YearBounds:    availability.DefaultYearBounds,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chi.URLParamを動かすためにルート付きリクエストを作るヘルパー
func newChiRequest(method, path string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, body)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// GET /api/calendar がカレンダー定義を返すことを検証
func TestAvailabilityHandler_GetCalendar(t *testing.T) {
	h := NewAvailabilityHandler(&mockCalendarService{})

	req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	w := httptest.NewRecorder()
	h.GetCalendar(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body calendarResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.AppName != "テストカレンダー" {
		t.Errorf("app_name = %q, want テストカレンダー", body.AppName)
	}
	if len(body.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(body.Participants))
	}
	if body.DefaultQuorum != 2 {
		t.Errorf("default_quorum = %d, want 2", body.DefaultQuorum)
	}
}

// GET /api/availability/shared がクォーラム指定を渡して結果を返すことを検証
func TestAvailabilityHandler_GetSharedAvailability(t *testing.T) {
	var gotQuorum int
	service := &mockCalendarService{
		sharedAvailabilityFunc: func(ctx context.Context, quorum int) (*calendar.SharedResult, error) {
			gotQuorum = quorum
			return &calendar.SharedResult{
				Dates:      []model.Day{0},
				Quorum:     quorum,
				ComputedAt: time.Now().UTC(),
			}, nil
		},
	}
	h := NewAvailabilityHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/availability/shared?quorum=2", nil)
	w := httptest.NewRecorder()
	h.GetSharedAvailability(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotQuorum != 2 {
		t.Errorf("quorum = %d, want 2", gotQuorum)
	}

	var body sharedResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Dates) != 1 {
		t.Errorf("dates = %v, want 1 entry", body.Dates)
	}
}

// quorum=everyoneが全員一致の特別値としてサービスへ渡ることを検証
func TestAvailabilityHandler_GetSharedAvailability_EveryoneQuorum(t *testing.T) {
	var gotQuorum int
	service := &mockCalendarService{
		sharedAvailabilityFunc: func(ctx context.Context, quorum int) (*calendar.SharedResult, error) {
			gotQuorum = quorum
			return &calendar.SharedResult{ComputedAt: time.Now().UTC()}, nil
		},
	}
	h := NewAvailabilityHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/availability/shared?quorum=everyone", nil)
	w := httptest.NewRecorder()
	h.GetSharedAvailability(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotQuorum != calendar.QuorumEveryone {
		t.Errorf("quorum = %d, want %d", gotQuorum, calendar.QuorumEveryone)
	}
}

// 不正なquorumパラメータが422になり、サービスへ到達しないことを検証。
// 特別値の内部整数表現（-1）を外部から直接渡しても全員一致として解釈されないこと。
func TestAvailabilityHandler_GetSharedAvailability_InvalidQuorumParam(t *testing.T) {
	tests := []struct {
		name   string
		quorum string
	}{
		{"非数値", "abc"},
		{"ゼロ", "0"},
		{"負数", "-2"},
		{"特別値の整数表現", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			service := &mockCalendarService{
				sharedAvailabilityFunc: func(ctx context.Context, quorum int) (*calendar.SharedResult, error) {
					called = true
					return &calendar.SharedResult{}, nil
				},
			}
			h := NewAvailabilityHandler(service)

			req := httptest.NewRequest(http.MethodGet, "/api/availability/shared?quorum="+tt.quorum, nil)
			w := httptest.NewRecorder()
			h.GetSharedAvailability(w, req)

			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}
			if called {
				t.Error("SharedAvailability should not be called for an invalid quorum")
			}

			var body struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != model.ErrCodeInvalidQuorum {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidQuorum)
			}
			if !strings.Contains(body.Message, tt.quorum) {
				t.Errorf("message %q should name the rejected input %q", body.Message, tt.quorum)
			}
		})
	}
}

// 不明な参加者で404が返ることを検証
func TestAvailabilityHandler_GetParticipantDates_UnknownParticipant(t *testing.T) {
	service := &mockCalendarService{
		participantDatesFunc: func(ctx context.Context, name string) ([]model.Day, error) {
			return nil, model.NewUnknownParticipantError(name)
		},
	}
	h := NewAvailabilityHandler(service)

	req := newChiRequest(http.MethodGet, "/api/participants/Nobody/dates", nil, map[string]string{"name": "Nobody"})
	w := httptest.NewRecorder()
	h.GetParticipantDates(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeUnknownParticipant {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnknownParticipant)
	}
}

// PUT /api/participants/{name}/dates が生の日付リストをサービスへ渡すことを検証
func TestAvailabilityHandler_ReplaceParticipantDates(t *testing.T) {
	var gotName string
	var gotRaw []any
	service := &mockCalendarService{
		replaceDatesFunc: func(ctx context.Context, name string, rawDates []any) ([]model.Day, error) {
			gotName = name
			gotRaw = rawDates
			return []model.Day{0, 1}, nil
		},
	}
	h := NewAvailabilityHandler(service)

	body := strings.NewReader(`{"dates":["2025-05-15",1747267200000]}`)
	req := newChiRequest(http.MethodPut, "/api/participants/Josh/dates", body, map[string]string{"name": "Josh"})
	w := httptest.NewRecorder()
	h.ReplaceParticipantDates(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotName != "Josh" {
		t.Errorf("name = %q, want Josh", gotName)
	}
	if len(gotRaw) != 2 {
		t.Errorf("raw dates = %v, want 2 entries", gotRaw)
	}
}

// 不正なJSONボディで400が返ることを検証
func TestAvailabilityHandler_ReplaceParticipantDates_InvalidBody(t *testing.T) {
	h := NewAvailabilityHandler(&mockCalendarService{})

	req := newChiRequest(http.MethodPut, "/api/participants/Josh/dates", strings.NewReader("{"), map[string]string{"name": "Josh"})
	w := httptest.NewRecorder()
	h.ReplaceParticipantDates(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// POST /api/participants/{name}/dates が201を返すことを検証
func TestAvailabilityHandler_AddParticipantDate(t *testing.T) {
	service := &mockCalendarService{
		addDateFunc: func(ctx context.Context, name string, raw any) (model.Day, error) {
			return mustDay(t, "2025-05-15"), nil
		},
	}
	h := NewAvailabilityHandler(service)

	body := strings.NewReader(`{"date":"2025-05-15"}`)
	req := newChiRequest(http.MethodPost, "/api/participants/Josh/dates", body, map[string]string{"name": "Josh"})
	w := httptest.NewRecorder()
	h.AddParticipantDate(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

// DELETE /api/participants/{name}/dates/{date} が204を返すことを検証
func TestAvailabilityHandler_RemoveParticipantDate(t *testing.T) {
	var gotRaw any
	service := &mockCalendarService{
		removeDateFunc: func(ctx context.Context, name string, raw any) (model.Day, error) {
			gotRaw = raw
			return mustDay(t, "2025-05-15"), nil
		},
	}
	h := NewAvailabilityHandler(service)

	req := newChiRequest(http.MethodDelete, "/api/participants/Josh/dates/2025-05-15", nil,
		map[string]string{"name": "Josh", "date": "2025-05-15"})
	w := httptest.NewRecorder()
	h.RemoveParticipantDate(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotRaw != "2025-05-15" {
		t.Errorf("raw = %v, want 2025-05-15", gotRaw)
	}
}

// 範囲外の日付で422が返ることを検証
func TestAvailabilityHandler_AddParticipantDate_OutOfRange(t *testing.T) {
	service := &mockCalendarService{
		addDateFunc: func(ctx context.Context, name string, raw any) (model.Day, error) {
			return 0, model.NewDateOutOfRangeError(0, 1, 2)
		},
	}
	h := NewAvailabilityHandler(service)

	body := strings.NewReader(`{"date":"2030-01-01"}`)
	req := newChiRequest(http.MethodPost, "/api/participants/Josh/dates", body, map[string]string{"name": "Josh"})
	w := httptest.NewRecorder()
	h.AddParticipantDate(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}
