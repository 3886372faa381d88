package availability

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/availcal/internal/model"
)

// TestNormalize_EquivalentRepresentations は同一カレンダー日の異なる表現が
// すべて同一のカノニカルキーに正規化されることを検証する。
func TestNormalize_EquivalentRepresentations(t *testing.T) {
	n := NewNormalizer(YearBounds{})

	native := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	millis := native.UnixMilli()

	inputs := []struct {
		name  string
		input any
	}{
		{"ISO日付文字列", "2025-05-15"},
		{"RFC3339文字列", "2025-05-15T00:00:00Z"},
		{"タイムゾーンなし日時文字列", "2025-05-15T09:30:00"},
		{"time.Time（UTC深夜）", native},
		{"time.Time（時刻付き）", time.Date(2025, 5, 15, 23, 59, 59, 0, time.UTC)},
		{"エポックミリ秒int64", millis},
		{"エポックミリ秒float64", float64(millis)},
		{"json.Number", json.Number("1747267200000")},
	}

	want, err := n.Normalize("2025-05-15")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if want.String() != "2025-05-15" {
		t.Fatalf("canonical string = %q, want %q", want.String(), "2025-05-15")
	}

	for _, tc := range inputs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize(tc.input)
			if err != nil {
				t.Fatalf("Normalize(%v) error = %v, want nil", tc.input, err)
			}
			if got != want {
				t.Errorf("Normalize(%v) = %v, want %v", tc.input, got, want)
			}
		})
	}
}

// TestNormalize_RejectsInvalidInputs は不正な入力がすべてErrRejectedで
// 拒否されることを検証する。拒否はパニックやゼロ値の返却ではなくエラー返却で行う。
func TestNormalize_RejectsInvalidInputs(t *testing.T) {
	n := NewNormalizer(YearBounds{})

	inputs := []struct {
		name  string
		input any
	}{
		{"nil", nil},
		{"空文字列", ""},
		{"空白のみ", "   "},
		{"実在しない日付", "2025-02-30"},
		{"解析不能な文字列", "invalid-date"},
		{"ゼロ値time.Time", time.Time{}},
		{"サポート外の型", struct{}{}},
		{"境界より前の年", "2019-12-31"},
		{"境界より後の年", "2031-01-01"},
		{"エポックミリ秒ゼロ（1970年）", int64(0)},
	}

	for _, tc := range inputs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.input)
			if err == nil {
				t.Fatalf("Normalize(%v) = nil error, want rejection", tc.input)
			}
			if !errors.Is(err, ErrRejected) {
				t.Errorf("Normalize(%v) error = %v, want ErrRejected", tc.input, err)
			}
		})
	}
}

// TestNormalize_ConfigurableBounds はサニティ境界が設定可能であることを検証する。
func TestNormalize_ConfigurableBounds(t *testing.T) {
	n := NewNormalizer(YearBounds{Min: 2024, Max: 2026})

	if _, err := n.Normalize("2025-06-01"); err != nil {
		t.Errorf("Normalize within bounds error = %v, want nil", err)
	}
	if _, err := n.Normalize("2027-01-01"); !errors.Is(err, ErrRejected) {
		t.Errorf("Normalize outside custom bounds error = %v, want ErrRejected", err)
	}
	// 既定境界では受理される年が、カスタム境界では拒否される
	if _, err := n.Normalize("2021-01-01"); !errors.Is(err, ErrRejected) {
		t.Errorf("Normalize(2021) with bounds 2024..2026 error = %v, want ErrRejected", err)
	}
}

// TestNormalize_Deterministic は同一入力が常に同一結果を返すことを検証する。
func TestNormalize_Deterministic(t *testing.T) {
	n := NewNormalizer(YearBounds{})

	first, err := n.Normalize("2025-05-15T12:00:00Z")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := n.Normalize("2025-05-15T12:00:00Z")
		if err != nil {
			t.Fatalf("iteration %d: expected no error, got %v", i, err)
		}
		if got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}

// TestNormalize_AlreadyCanonical は正規化済みのDayがそのまま受理されることを検証する。
func TestNormalize_AlreadyCanonical(t *testing.T) {
	n := NewNormalizer(YearBounds{})

	day := model.DayFromTime(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC))
	got, err := n.Normalize(day)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != day {
		t.Errorf("Normalize(Day) = %v, want %v", got, day)
	}
}
