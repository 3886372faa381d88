package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/availcal/internal/ics"
	"github.com/hitoshi/availcal/internal/metrics"
	"github.com/hitoshi/availcal/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector

	// ドメインサービス
	CalendarService CalendarServiceInterface
	ICSFetcher      ics.FetcherService

	// /health でのDB疎通確認用。nilの場合はプロセス生存のみを報告する
	DBPinger interface {
		PingContext(ctx context.Context) error
	}

	// Prometheusスクレイプ用
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	availHandler := NewAvailabilityHandler(deps.CalendarService)
	icsHandler := NewICSHandler(deps.CalendarService, deps.ICSFetcher)
	streamHandler := NewStreamHandler(deps.CalendarService, deps.Collector, deps.Logger)

	// --- レート制限の外のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.DBPinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := deps.DBPinger.PingContext(ctx); err != nil {
				writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"reason": "database unreachable",
				})
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)、書き込み系にはRateLimit(Write)を追加
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/calendar", availHandler.GetCalendar)

		r.Route("/api/participants", func(r chi.Router) {
			r.Get("/", availHandler.ListParticipants)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/dates", availHandler.GetParticipantDates)
				r.With(deps.RateLimiter.WriteMiddleware()).Put("/dates", availHandler.ReplaceParticipantDates)
				r.With(deps.RateLimiter.WriteMiddleware()).Post("/dates", availHandler.AddParticipantDate)
				r.With(deps.RateLimiter.WriteMiddleware()).Delete("/dates/{date}", availHandler.RemoveParticipantDate)

				// 外部カレンダーのインポート
				r.With(deps.RateLimiter.WriteMiddleware()).Post("/import", icsHandler.ImportCalendar)
			})
		})

		r.Route("/api/availability", func(r chi.Router) {
			r.Get("/shared", availHandler.GetSharedAvailability)
			r.Get("/calendar.ics", icsHandler.ExportCalendar)
			r.Get("/stream", streamHandler.Stream)
		})
	})

	return r
}
