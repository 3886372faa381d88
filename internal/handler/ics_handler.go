package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/availcal/internal/ics"
)

// ICSHandler はiCalendarエクスポートとインポートのHTTPハンドラー。
type ICSHandler struct {
	service CalendarServiceInterface
	fetcher ics.FetcherService
}

// NewICSHandler はICSHandlerを生成する。
func NewICSHandler(service CalendarServiceInterface, fetcher ics.FetcherService) *ICSHandler {
	return &ICSHandler{
		service: service,
		fetcher: fetcher,
	}
}

// importRequest は外部カレンダーインポートリクエストのボディ。
type importRequest struct {
	URL string `json:"url"`
}

// importResponse はインポート結果のAPIレスポンス。
type importResponse struct {
	Participant string `json:"participant"`
	Added       int    `json:"added"`
	Rejected    int    `json:"rejected"`
}

// ExportCalendar は共有可能日をiCalendar形式で返す。
// GET /api/availability/calendar.ics?quorum=N
func (h *ICSHandler) ExportCalendar(w http.ResponseWriter, r *http.Request) {
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

	body := ics.BuildCalendar(h.service.Calendar().AppName, result.Dates)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// ImportCalendar は外部ICSカレンダーのイベント開始日を指定参加者へ取り込む。
// 取得URLはSSRF防止の検証を通過する必要がある。
// POST /api/participants/{name}/import
func (h *ICSHandler) ImportCalendar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	days, rejected, err := h.fetcher.FetchDates(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	added, err := h.service.ImportDates(r.Context(), name, days)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, importResponse{
		Participant: name,
		Added:       len(added),
		Rejected:    rejected,
	})
}
