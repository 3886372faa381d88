// Package ics はiCalendar形式での共有可能日のエクスポートと、
// 外部カレンダーからの選択日インポートを提供する。
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hitoshi/availcal/internal/model"
)

// prodID はエクスポートするカレンダーのPRODID。
const prodID = "-//availcal//availcal//JA"

// BuildCalendar は共有可能日のリストをiCalendar文書に変換する。
// 各日は終日イベント（DTEND排他で翌日）として出力される。
// UIDは日付から決定的に生成されるため、再エクスポートしても同一UIDになり、
// 購読側カレンダーでイベントが重複しない。
func BuildCalendar(appName string, days []model.Day) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetXWRCalName(appName)

	now := time.Now().UTC()
	for _, day := range days {
		event := cal.AddEvent(fmt.Sprintf("%s@availcal", day))
		event.SetDtStampTime(now)
		event.SetAllDayStartAt(day.Time())
		event.SetAllDayEndAt(day.Time().AddDate(0, 0, 1))
		event.SetSummary(fmt.Sprintf("%s: 全員参加可能", appName))
	}

	return cal.Serialize()
}
