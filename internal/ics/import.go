package ics

import (
	"bytes"
	"errors"
	"sort"
	"strings"

	ical "github.com/arran4/golang-ical"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/model"
)

// ParseDates はICS文書からイベント開始日を抽出し、正規化済みの
// 日付リストを返す。終日イベントは日付をそのまま、時刻付きイベントは
// 開始時刻の属する日を採用する。範囲外の日付や不正な日付はスキップし、
// スキップした件数を第2戻り値で返す。重複する日付は1つにまとめられる。
func ParseDates(body []byte, normalizer *availability.Normalizer) ([]model.Day, int, error) {
	if len(body) == 0 {
		return nil, 0, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[model.Day]struct{})
	rejected := 0

	for _, event := range cal.Events() {
		dtStart := event.GetProperty(ical.ComponentPropertyDtStart)
		if dtStart == nil || dtStart.Value == "" {
			rejected++
			continue
		}

		var input any
		if isAllDay(dtStart) {
			// YYYYMMDD形式をISO形式に変換して正規化へ渡す
			input = toISODate(dtStart.Value)
		} else {
			start, err := event.GetStartAt()
			if err != nil {
				rejected++
				continue
			}
			input = start
		}

		day, err := normalizer.Normalize(input)
		if err != nil {
			rejected++
			continue
		}
		seen[day] = struct{}{}
	}

	days := make([]model.Day, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	return days, rejected, nil
}

// isAllDay はDTSTARTが終日イベント（VALUE=DATE、または時刻部のない値）かを判定する。
func isAllDay(prop *ical.IANAProperty) bool {
	if params := prop.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(prop.Value, "T")
}

// toISODate はYYYYMMDD形式の値をYYYY-MM-DD形式に変換する。
// 変換できない値はそのまま返し、正規化側で拒否させる。
func toISODate(value string) string {
	if len(value) != 8 {
		return value
	}
	return value[0:4] + "-" + value[4:6] + "-" + value[6:8]
}
