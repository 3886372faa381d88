// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/availcal/internal/calendar"
	"github.com/hitoshi/availcal/internal/config"
	"github.com/hitoshi/availcal/internal/model"
)

// CalendarServiceInterface は可用性ハンドラーが必要とするサービスインターフェース。
type CalendarServiceInterface interface {
	// SharedAvailability は共有可能日を計算する。quorum 0はデフォルト値を意味する。
	SharedAvailability(ctx context.Context, quorum int) (*calendar.SharedResult, error)
	// ParticipantDates は指定参加者の選択日を返す。
	ParticipantDates(ctx context.Context, name string) ([]model.Day, error)
	// ReplaceDates は指定参加者の選択日を全置換する。
	ReplaceDates(ctx context.Context, name string, rawDates []any) ([]model.Day, error)
	// AddDate は指定参加者に1日を追加する。
	AddDate(ctx context.Context, name string, raw any) (model.Day, error)
	// RemoveDate は指定参加者から1日を削除する。
	RemoveDate(ctx context.Context, name string, raw any) (model.Day, error)
	// ImportDates は外部カレンダー由来の日付を指定参加者へ追加する。
	ImportDates(ctx context.Context, name string, days []model.Day) ([]model.Day, error)
	// Participants は設定された参加者のリストを返す。
	Participants() []model.Participant
	// Calendar はカレンダー定義を返す。
	Calendar() *config.Calendar
	// Watch は変更通知チャネルを登録する。
	Watch() (string, <-chan struct{})
	// Unwatch はWatchで登録したチャネルを解除する。
	Unwatch(handle string)
}

// AvailabilityHandler は共有可能日と参加者選択のHTTPハンドラー。
type AvailabilityHandler struct {
	service CalendarServiceInterface
}

// NewAvailabilityHandler はAvailabilityHandlerを生成する。
func NewAvailabilityHandler(service CalendarServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
	}
}

// calendarResponse はカレンダー定義のAPIレスポンス。
type calendarResponse struct {
	AppName       string                `json:"app_name"`
	Participants  []participantResponse `json:"participants"`
	MinDate       model.Day             `json:"min_date"`
	MaxDate       model.Day             `json:"max_date"`
	DefaultQuorum int                   `json:"default_quorum"`
}

// participantResponse は参加者のAPIレスポンス。
type participantResponse struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// sharedResponse は共有可能日計算結果のAPIレスポンス。
type sharedResponse struct {
	Dates      []model.Day `json:"dates"`
	Quorum     int         `json:"quorum"`
	Rejected   int         `json:"rejected"`
	ComputedAt time.Time   `json:"computed_at"`
}

// datesResponse は1参加者の選択日のAPIレスポンス。
type datesResponse struct {
	Participant string      `json:"participant"`
	Dates       []model.Day `json:"dates"`
}

// replaceDatesRequest は選択日全置換リクエストのボディ。
// 日付は文字列・エポックミリ秒のいずれでも受け付ける。
type replaceDatesRequest struct {
	Dates []any `json:"dates"`
}

// singleDateRequest は1日追加リクエストのボディ。
type singleDateRequest struct {
	Date any `json:"date"`
}

// GetCalendar はカレンダー定義を返す。
// GET /api/calendar
func (h *AvailabilityHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	cal := h.service.Calendar()
	writeJSONResponse(w, http.StatusOK, calendarResponse{
		AppName:       cal.AppName,
		Participants:  toParticipantResponses(cal.Participants),
		MinDate:       cal.MinDate,
		MaxDate:       cal.MaxDate,
		DefaultQuorum: cal.DefaultQuorum,
	})
}

// ListParticipants は設定された参加者の一覧を返す。
// GET /api/participants
func (h *AvailabilityHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, toParticipantResponses(h.service.Participants()))
}

// GetParticipantDates は指定参加者の選択日を返す。
// GET /api/participants/{name}/dates
func (h *AvailabilityHandler) GetParticipantDates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	dates, err := h.service.ParticipantDates(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, datesResponse{Participant: name, Dates: dates})
}

// ReplaceParticipantDates は指定参加者の選択日を全置換する。
// PUT /api/participants/{name}/dates
func (h *AvailabilityHandler) ReplaceParticipantDates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req replaceDatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	dates, err := h.service.ReplaceDates(r.Context(), name, req.Dates)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, datesResponse{Participant: name, Dates: dates})
}

// AddParticipantDate は指定参加者に1日を追加する。
// POST /api/participants/{name}/dates
func (h *AvailabilityHandler) AddParticipantDate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req singleDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	day, err := h.service.AddDate(r.Context(), name, req.Date)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"participant": name,
		"date":        day,
	})
}

// RemoveParticipantDate は指定参加者から1日を削除する。
// DELETE /api/participants/{name}/dates/{date}
func (h *AvailabilityHandler) RemoveParticipantDate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	date := chi.URLParam(r, "date")

	if _, err := h.service.RemoveDate(r.Context(), name, date); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSharedAvailability は共有可能日を返す。
// GET /api/availability/shared?quorum=N
func (h *AvailabilityHandler) GetSharedAvailability(w http.ResponseWriter, r *http.Request) {
	quorum, apiErr := parseQuorum(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	result, err := h.service.SharedAvailability(r.Context(), quorum)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, sharedResponse{
		Dates:      result.Dates,
		Quorum:     result.Quorum,
		Rejected:   result.Rejected,
		ComputedAt: result.ComputedAt,
	})
}

// parseQuorum はquorumクエリパラメータを解析する。未指定は0（デフォルト値の意味）。
// "everyone" は全参加者一致を意味する特別値として受け付ける。
// 数値の場合は1以上のみ有効。特別値の整数表現を外部から渡されても受け付けない。
func parseQuorum(r *http.Request) (int, *model.APIError) {
	raw := r.URL.Query().Get("quorum")
	if raw == "" {
		return 0, nil
	}
	if raw == "everyone" {
		return calendar.QuorumEveryone, nil
	}
	quorum, err := strconv.Atoi(raw)
	if err != nil || quorum < 1 {
		return 0, model.NewInvalidQuorumParamError(raw)
	}
	return quorum, nil
}

func toParticipantResponses(participants []model.Participant) []participantResponse {
	out := make([]participantResponse, len(participants))
	for i, p := range participants {
		out[i] = participantResponse{Name: p.Name, Color: p.Color}
	}
	return out
}

// invalidRequestBodyError はリクエストボディ解析失敗のAPIErrorを返す。
func invalidRequestBodyError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidQuorum:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnknownParticipant:
		return http.StatusNotFound
	case model.ErrCodeInvalidDate:
		return http.StatusBadRequest
	case model.ErrCodeDateOutOfRange:
		return http.StatusUnprocessableEntity
	case model.ErrCodeICSURLBlocked:
		return http.StatusForbidden
	case model.ErrCodeICSFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeICSParseFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
