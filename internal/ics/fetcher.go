package ics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/model"
	"github.com/hitoshi/availcal/internal/security"
)

// maxICSBodySize は取得するICS文書の最大サイズ（5MB）。
const maxICSBodySize = 5 * 1024 * 1024

// FetcherService は外部カレンダーURLからの選択日インポートのインターフェース。
type FetcherService interface {
	// FetchDates は指定URLのICS文書を取得し、正規化済みの日付リストと
	// スキップした件数を返す。
	FetchDates(ctx context.Context, rawURL string) ([]model.Day, int, error)
}

// Fetcher はSSRF防止付きHTTPクライアントでICS文書を取得する。
type Fetcher struct {
	client     *http.Client
	guard      security.SSRFGuardService
	normalizer *availability.Normalizer
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(guard security.SSRFGuardService, normalizer *availability.Normalizer, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:     guard.NewSafeClient(timeout),
		guard:      guard,
		normalizer: normalizer,
	}
}

// FetchDates は指定URLのICS文書を取得し、イベント開始日を抽出する。
// URLの事前検証で拒否された場合はICS_URL_BLOCKED、取得失敗は
// ICS_FETCH_FAILED、パース失敗はICS_PARSE_FAILEDのAPIErrorを返す。
func (f *Fetcher) FetchDates(ctx context.Context, rawURL string) ([]model.Day, int, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, 0, model.NewICSURLBlockedError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, model.NewICSFetchFailedError(err.Error())
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, model.NewICSFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, model.NewICSFetchFailedError(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxICSBodySize))
	if err != nil {
		return nil, 0, model.NewICSFetchFailedError(err.Error())
	}

	days, rejected, err := ParseDates(body, f.normalizer)
	if err != nil {
		return nil, 0, model.NewICSParseFailedError()
	}

	return days, rejected, nil
}

// compile-time interface check
var _ FetcherService = (*Fetcher)(nil)
