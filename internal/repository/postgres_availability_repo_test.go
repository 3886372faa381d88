package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/availcal/internal/model"
)

// TestPostgresAvailabilityRepo_ImplementsInterface はPostgresAvailabilityRepoがAvailabilityRepositoryを実装することを検証する。
func TestPostgresAvailabilityRepo_ImplementsInterface(t *testing.T) {
	// コンパイル時チェック：PostgresAvailabilityRepoがAvailabilityRepositoryを満たすことを検証
	var _ AvailabilityRepository = (*PostgresAvailabilityRepo)(nil)
}

// NewPostgresAvailabilityRepoが正しく初期化されることを検証
func TestNewPostgresAvailabilityRepo_Initializes(t *testing.T) {
	repo := NewPostgresAvailabilityRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// DATE列へバインドする値がUTC深夜0時であることを検証
// （リポジトリはmodel.Day.Time()をそのままプレースホルダへ渡す）
func TestDayTimeBinding_IsUTCMidnight(t *testing.T) {
	day := model.DayFromTime(time.Date(2025, 5, 15, 13, 45, 0, 0, time.UTC))
	bound := day.Time()

	if bound.Hour() != 0 || bound.Minute() != 0 || bound.Second() != 0 {
		t.Errorf("bound time = %v, want midnight", bound)
	}
	if bound.Location() != time.UTC {
		t.Errorf("bound location = %v, want UTC", bound.Location())
	}
	if got := model.DayFromTime(bound); got != day {
		t.Errorf("round trip = %v, want %v", got, day)
	}
}
