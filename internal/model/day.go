// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// dayLayout はDayの文字列表現に使用するISO-8601日付フォーマット。
const dayLayout = "2006-01-02"

// Day は正規化済みのカレンダー日付（カノニカル日付）を表す。
// Unixエポック（1970-01-01 UTC）からの経過日数を整数で保持し、
// 元の表現（文字列・time.Time・エポックミリ秒）に依存しない全順序比較を提供する。
// 同一のカレンダー日はどの表現から正規化しても同一のDay値になる。
type Day int64

// DayFromTime はtime.Timeから時刻部分を切り捨ててDayを生成する。
// タイムゾーンはUTCに変換してから切り捨てる。
func DayFromTime(t time.Time) Day {
	u := t.UTC()
	return Day(time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Time はDayをUTC深夜0時のtime.Timeに変換する。
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// Year はDayが属する年を返す。
func (d Day) Year() int {
	return d.Time().Year()
}

// String はISO-8601形式（YYYY-MM-DD）の文字列表現を返す。
func (d Day) String() string {
	return d.Time().Format(dayLayout)
}

// MarshalText はDayをYYYY-MM-DD形式でシリアライズする。
// JSONレスポンスおよびデータベース書き込みで使用される。
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText はYYYY-MM-DD形式の文字列からDayを復元する。
func (d *Day) UnmarshalText(b []byte) error {
	t, err := time.Parse(dayLayout, string(b))
	if err != nil {
		return fmt.Errorf("invalid day %q: %w", string(b), err)
	}
	*d = DayFromTime(t)
	return nil
}
