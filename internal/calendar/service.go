// Package calendar は共有可能日カレンダーのドメインロジックを提供する。
// 永続化ストア、計算エンジン、変更通知を束ね、ハンドラー層へ
// バリデーション済みの操作を公開する。
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/config"
	"github.com/hitoshi/availcal/internal/metrics"
	"github.com/hitoshi/availcal/internal/model"
	"github.com/hitoshi/availcal/internal/repository"
)

// ChangeNotifier は永続化ストアの変更通知を購読するインターフェース。
// notify.Listenerが満たす。
type ChangeNotifier interface {
	Subscribe(fn func()) string
	Unsubscribe(handle string)
}

// QuorumEveryone はクォーラムとして「設定された全参加者」を指定する特別値。
const QuorumEveryone = -1

// SharedResult は共有可能日計算の結果を表す。
type SharedResult struct {
	Dates      []model.Day
	Quorum     int
	Rejected   int
	ComputedAt time.Time
}

// Service は共有可能日カレンダーのサービス層。
type Service struct {
	repo       repository.AvailabilityRepository
	engine     *availability.Engine
	normalizer *availability.Normalizer
	cal        *config.Calendar
	notifier   ChangeNotifier
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	debouncer  *availability.Debouncer

	mu       sync.Mutex
	watchers map[string]chan struct{}
}

// NewService はServiceの新しいインスタンスを生成する。
// 年の妥当範囲はカレンダー定義のYearBoundsに従う。
func NewService(
	repo repository.AvailabilityRepository,
	cal *config.Calendar,
	notifier ChangeNotifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	debounceWindow time.Duration,
) *Service {
	normalizer := availability.NewNormalizer(cal.YearBounds)
	s := &Service{
		repo:       repo,
		engine:     availability.NewEngine(normalizer),
		normalizer: normalizer,
		cal:        cal,
		notifier:   notifier,
		collector:  collector,
		logger:     logger,
		watchers:   make(map[string]chan struct{}),
	}
	s.debouncer = availability.NewDebouncer(debounceWindow, s.broadcast)
	return s
}

// Start は変更通知の購読を開始し、コンテキストがキャンセルされるまで
// ブロックする。通知はデバウンスウィンドウでまとめられてから
// Watchで登録されたウォッチャーへ配送される。連続する書き込みの嵐でも
// ウォッチャー側の再計算は1回にまとめられる。
func (s *Service) Start(ctx context.Context) {
	handle := s.notifier.Subscribe(func() {
		s.collector.RecordChangeNotification()
		s.debouncer.Trigger()
	})

	s.logger.Info("カレンダーサービスを開始しました",
		slog.String("app_name", s.cal.AppName),
		slog.Int("participants", len(s.cal.Participants)),
	)

	<-ctx.Done()

	s.notifier.Unsubscribe(handle)
	s.debouncer.Stop()
	s.logger.Info("カレンダーサービスを停止しました")
}

// Watch は変更通知チャネルを登録し、解除用ハンドルとチャネルを返す。
// チャネルはバッファ1で、配送が追いつかない場合は通知が合流する。
func (s *Service) Watch() (string, <-chan struct{}) {
	handle := uuid.NewString()
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[handle] = ch
	s.mu.Unlock()
	return handle, ch
}

// Unwatch はWatchで登録したチャネルを解除する。
func (s *Service) Unwatch(handle string) {
	s.mu.Lock()
	delete(s.watchers, handle)
	s.mu.Unlock()
}

// broadcast は全ウォッチャーへ変更を通知する。送信はノンブロッキングで、
// 既に通知が滞留しているチャネルへは追加送信しない。
func (s *Service) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SharedAvailability は現在のストア内容から共有可能日を計算する。
// quorumが0の場合はカレンダー定義のデフォルトクォーラムを、
// QuorumEveryoneの場合は全参加者数を使用する。
// 設定された全参加者がクォーラムの分母に数えられる。
// ストアに行がない参加者は空の選択として扱われる。
func (s *Service) SharedAvailability(ctx context.Context, quorum int) (*SharedResult, error) {
	switch quorum {
	case 0:
		quorum = s.cal.DefaultQuorum
	case QuorumEveryone:
		quorum = len(s.cal.Participants)
	}

	start := time.Now()

	records, err := s.repo.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("選択日データの取得に失敗しました: %w", err)
	}

	selections := s.buildSelections(records)

	dates, rejected, err := s.engine.ComputeSharedStats(selections, quorum)
	if err != nil {
		return nil, err
	}

	s.collector.RecordComputeRun(time.Since(start))
	if rejected > 0 {
		s.collector.RecordRejectedDates(rejected)
		s.logger.Warn("正規化で棄却された日付があります",
			slog.Int("rejected", rejected),
		)
	}

	return &SharedResult{
		Dates:      dates,
		Quorum:     quorum,
		Rejected:   rejected,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// buildSelections はストアの行を設定された参加者ごとの選択にまとめる。
// 設定にない名前の行は無視する（削除済み参加者の残骸でありうる）。
func (s *Service) buildSelections(records []model.AvailabilityRecord) []model.Selection {
	byName := make(map[string][]any)
	for _, rec := range records {
		if _, ok := s.cal.ParticipantByName(rec.ParticipantName); !ok {
			s.logger.Warn("設定にない参加者の行をスキップしました",
				slog.String("participant", rec.ParticipantName),
			)
			continue
		}
		byName[rec.ParticipantName] = append(byName[rec.ParticipantName], rec.SelectedDate)
	}

	selections := make([]model.Selection, 0, len(s.cal.Participants))
	for _, p := range s.cal.Participants {
		selections = append(selections, model.Selection{
			Name:  p.Name,
			Dates: byName[p.Name],
		})
	}
	return selections
}

// ParticipantDates は指定参加者の選択日を昇順で返す。
func (s *Service) ParticipantDates(ctx context.Context, name string) ([]model.Day, error) {
	if _, ok := s.cal.ParticipantByName(name); !ok {
		return nil, model.NewUnknownParticipantError(name)
	}

	dates, err := s.repo.ListByParticipant(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("選択日の取得に失敗しました: %w", err)
	}
	if dates == nil {
		dates = []model.Day{}
	}
	return dates, nil
}

// ReplaceDates は指定参加者の選択日を全置換する。
// 入力は正規化・範囲検証・重複排除された上で昇順に保存される。
// 保存した日付リストを返す。
func (s *Service) ReplaceDates(ctx context.Context, name string, rawDates []any) ([]model.Day, error) {
	if _, ok := s.cal.ParticipantByName(name); !ok {
		return nil, model.NewUnknownParticipantError(name)
	}

	seen := make(map[model.Day]struct{})
	dates := make([]model.Day, 0, len(rawDates))
	for _, raw := range rawDates {
		day, err := s.validateDate(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	if err := s.repo.ReplaceParticipantDates(ctx, name, dates); err != nil {
		s.collector.RecordStoreWriteFailure("replace")
		return nil, fmt.Errorf("選択日の保存に失敗しました: %w", err)
	}

	s.logger.Info("選択日を全置換しました",
		slog.String("participant", name),
		slog.Int("count", len(dates)),
	)

	return dates, nil
}

// AddDate は指定参加者に1日を追加する。追加した日を返す。冪等。
func (s *Service) AddDate(ctx context.Context, name string, raw any) (model.Day, error) {
	if _, ok := s.cal.ParticipantByName(name); !ok {
		return 0, model.NewUnknownParticipantError(name)
	}

	day, err := s.validateDate(raw)
	if err != nil {
		return 0, err
	}

	if err := s.repo.AddDate(ctx, name, day); err != nil {
		s.collector.RecordStoreWriteFailure("add")
		return 0, fmt.Errorf("選択日の追加に失敗しました: %w", err)
	}

	return day, nil
}

// RemoveDate は指定参加者から1日を削除する。削除対象の日を返す。冪等。
func (s *Service) RemoveDate(ctx context.Context, name string, raw any) (model.Day, error) {
	if _, ok := s.cal.ParticipantByName(name); !ok {
		return 0, model.NewUnknownParticipantError(name)
	}

	day, err := s.validateDate(raw)
	if err != nil {
		return 0, err
	}

	if err := s.repo.RemoveDate(ctx, name, day); err != nil {
		s.collector.RecordStoreWriteFailure("remove")
		return 0, fmt.Errorf("選択日の削除に失敗しました: %w", err)
	}

	return day, nil
}

// ImportDates は外部カレンダーから取得した日付を指定参加者へ追加する。
// 既存の選択日とマージされる（全置換ではない）。カレンダーの表示範囲外の
// 日付はスキップし、追加した日付リストを返す。
func (s *Service) ImportDates(ctx context.Context, name string, days []model.Day) ([]model.Day, error) {
	if _, ok := s.cal.ParticipantByName(name); !ok {
		return nil, model.NewUnknownParticipantError(name)
	}

	added := make([]model.Day, 0, len(days))
	for _, day := range days {
		if !s.cal.InRange(day) {
			continue
		}
		if err := s.repo.AddDate(ctx, name, day); err != nil {
			s.collector.RecordStoreWriteFailure("add")
			return nil, fmt.Errorf("インポートした日付の追加に失敗しました: %w", err)
		}
		added = append(added, day)
	}

	s.logger.Info("外部カレンダーから日付をインポートしました",
		slog.String("participant", name),
		slog.Int("added", len(added)),
		slog.Int("skipped", len(days)-len(added)),
	)

	return added, nil
}

// Participants は設定された参加者のリストを返す。
func (s *Service) Participants() []model.Participant {
	return s.cal.Participants
}

// Calendar はカレンダー定義を返す。
func (s *Service) Calendar() *config.Calendar {
	return s.cal
}

// ReconcileRenames はカレンダー定義の名前変更マッピングに基づき、
// 旧名で永続化された行を新名へ付け替える。起動時に1回だけ呼び出す。
func (s *Service) ReconcileRenames(ctx context.Context) error {
	mapping := s.cal.RenameMapping()
	if len(mapping) == 0 {
		return nil
	}

	if err := s.repo.ReconcileRenames(ctx, mapping); err != nil {
		return fmt.Errorf("名前変更のリコンサイルに失敗しました: %w", err)
	}

	s.logger.Info("名前変更のリコンサイルが完了しました",
		slog.Int("mappings", len(mapping)),
	)
	return nil
}

// validateDate は生の日付入力を正規化し、カレンダーの表示範囲内かを検証する。
func (s *Service) validateDate(raw any) (model.Day, error) {
	day, err := s.normalizer.Normalize(raw)
	if err != nil {
		return 0, model.NewInvalidDateError(fmt.Sprintf("%v", raw))
	}
	if !s.cal.InRange(day) {
		return 0, model.NewDateOutOfRangeError(day, s.cal.MinDate, s.cal.MaxDate)
	}
	return day, nil
}
