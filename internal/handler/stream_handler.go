package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hitoshi/availcal/internal/metrics"
)

// heartbeatInterval はSSE接続維持のためのコメント送信間隔。
const heartbeatInterval = 30 * time.Second

// StreamHandler は共有可能日のリアルタイム配信（SSE）のHTTPハンドラー。
// ストア変更のデバウンス済み通知を受けるたびに再計算結果を配信する。
type StreamHandler struct {
	service   CalendarServiceInterface
	collector metrics.MetricsCollector
	logger    *slog.Logger

	clients atomic.Int64
}

// NewStreamHandler はStreamHandlerを生成する。
func NewStreamHandler(service CalendarServiceInterface, collector metrics.MetricsCollector, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		service:   service,
		collector: collector,
		logger:    logger,
	}
}

// Stream は共有可能日の変更をServer-Sent Eventsで配信する。
// 接続直後に現在の計算結果を1回送信し、以降はストアの変更ごとに送信する。
// GET /api/availability/stream?quorum=N
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	quorum, apiErr := parseQuorum(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	handle, changes := h.service.Watch()
	defer h.service.Unwatch(handle)

	count := h.clients.Add(1)
	h.collector.SetStreamClients(int(count))
	h.logger.Info("SSEクライアントが接続しました",
		slog.Int64("clients", count),
	)
	defer func() {
		count := h.clients.Add(-1)
		h.collector.SetStreamClients(int(count))
		h.logger.Info("SSEクライアントが切断しました",
			slog.Int64("clients", count),
		)
	}()

	// 接続直後に現在の状態を送信
	if !h.sendShared(w, flusher, r, quorum) {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changes:
			if !h.sendShared(w, flusher, r, quorum) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sendShared は現在の共有可能日を1イベントとして送信する。
// 送信に失敗した場合はfalseを返す。
func (h *StreamHandler) sendShared(w http.ResponseWriter, flusher http.Flusher, r *http.Request, quorum int) bool {
	result, err := h.service.SharedAvailability(r.Context(), quorum)
	if err != nil {
		h.logger.Error("SSE配信用の計算に失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}

	payload, err := json.Marshal(sharedResponse{
		Dates:      result.Dates,
		Quorum:     result.Quorum,
		Rejected:   result.Rejected,
		ComputedAt: result.ComputedAt,
	})
	if err != nil {
		return false
	}

	if _, err := fmt.Fprintf(w, "event: shared\ndata: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
