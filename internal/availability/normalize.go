// Package availability は共有可能日の計算エンジンを提供する。
// 日付正規化、クォーラムフィルタ付きの積集合計算、デバウンスプリミティブを含む。
package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/availcal/internal/model"
)

// ErrRejected は日付入力が正規化ゲートで拒否されたことを示すセンチネルエラー。
// 個々の拒否理由はラップされたメッセージに含まれる。
// 拒否は日付単位のポリシーであり、計算全体を中断させることはない。
var ErrRejected = errors.New("date input rejected")

// YearBounds は正規化時のサニティ境界（許容される年の範囲）を表す。
// 境界はポリシーとして設定可能であり、ハードコードしない。
type YearBounds struct {
	Min int
	Max int
}

// DefaultYearBounds は既定のサニティ境界。
// 明らかに壊れたタイムスタンプ（1970年や9999年など）を弾くための範囲。
var DefaultYearBounds = YearBounds{Min: 2020, Max: 2030}

// stringLayouts は文字列入力の解析に試行するレイアウト。先頭から順に試す。
var stringLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Normalizer は異種混在の日付入力をカノニカルなmodel.Dayに正規化する。
// 参加者の日付コレクションはユーザー操作・永続化ストア・テストフィクスチャ
// から異なる表現で到着するため、比較前に必ずこの単一のゲートを通す。
// 純粋関数として動作し、現在時刻には依存しない。
type Normalizer struct {
	bounds YearBounds
}

// NewNormalizer は指定されたサニティ境界を持つNormalizerを生成する。
// boundsがゼロ値の場合はDefaultYearBoundsを使用する。
func NewNormalizer(bounds YearBounds) *Normalizer {
	if bounds == (YearBounds{}) {
		bounds = DefaultYearBounds
	}
	return &Normalizer{bounds: bounds}
}

// Bounds は設定されているサニティ境界を返す。
func (n *Normalizer) Bounds() YearBounds {
	return n.bounds
}

// Normalize は日付入力をカノニカルなDayに変換する。
// 受理する型: model.Day、time.Time、ISO-8601文字列（日付・日時）、
// エポックミリ秒（int64/int/float64/json.Number）。
// nil・空文字列・解析不能な文字列・実在しないカレンダー日付・
// サニティ境界外の日付はErrRejectedをラップしたエラーで拒否する。
// 同一入力は常に同一の結果を返す。
func (n *Normalizer) Normalize(input any) (model.Day, error) {
	if input == nil {
		return 0, fmt.Errorf("%w: nil input", ErrRejected)
	}

	switch v := input.(type) {
	case model.Day:
		return n.checkBounds(v)
	case time.Time:
		if v.IsZero() {
			return 0, fmt.Errorf("%w: zero time", ErrRejected)
		}
		return n.checkBounds(model.DayFromTime(v))
	case string:
		return n.normalizeString(v)
	case int64:
		return n.normalizeMillis(v)
	case int:
		return n.normalizeMillis(int64(v))
	case float64:
		return n.normalizeMillis(int64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: unparseable number %q", ErrRejected, v.String())
		}
		return n.normalizeMillis(int64(f))
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrRejected, input)
	}
}

// normalizeString はISO-8601文字列をDayに変換する。
// time.Parseは実在しないカレンダー日付（例: "2025-02-30"）を拒否する。
func (n *Normalizer) normalizeString(s string) (model.Day, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrRejected)
	}

	for _, layout := range stringLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return n.checkBounds(model.DayFromTime(t))
		}
	}

	return 0, fmt.Errorf("%w: unparseable date string %q", ErrRejected, s)
}

// normalizeMillis はエポックミリ秒をDayに変換する。
func (n *Normalizer) normalizeMillis(ms int64) (model.Day, error) {
	return n.checkBounds(model.DayFromTime(time.UnixMilli(ms)))
}

// checkBounds はサニティ境界の検査を行う。
func (n *Normalizer) checkBounds(d model.Day) (model.Day, error) {
	year := d.Year()
	if year < n.bounds.Min || year > n.bounds.Max {
		return 0, fmt.Errorf("%w: year %d outside sanity bounds [%d, %d]", ErrRejected, year, n.bounds.Min, n.bounds.Max)
	}
	return d, nil
}
