package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/model"
	"github.com/hitoshi/availcal/internal/security"
)

// participantYAML はYAMLファイル上の参加者定義。
type participantYAML struct {
	Name          string   `yaml:"name"`
	Color         string   `yaml:"color"`
	PreviousNames []string `yaml:"previous_names"`
}

// calendarYAML はYAMLファイルのルート構造。
// 日付はYAMLのタイムスタンプ解釈を避けるため文字列（"YYYY-MM-DD"）で受け取る。
type calendarYAML struct {
	AppName           string            `yaml:"app_name"`
	MinUsersForShared int               `yaml:"min_users_for_shared"`
	Calendar          struct {
		MinDate string `yaml:"min_date"`
		MaxDate string `yaml:"max_date"`
	} `yaml:"calendar"`
	YearBounds struct {
		Min int `yaml:"min"`
		Max int `yaml:"max"`
	} `yaml:"year_bounds"`
	Participants []participantYAML `yaml:"participants"`
}

// Calendar はカレンダー定義（参加者・選択可能範囲・既定クォーラム）を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// 参加者の集合は実行中固定であり、APIから追加・削除されることはない。
type Calendar struct {
	AppName       string
	Participants  []model.Participant
	MinDate       model.Day
	MaxDate       model.Day
	DefaultQuorum int
	YearBounds    availability.YearBounds
}

// LoadCalendar は指定パスのYAMLファイルからカレンダー定義を読み込む。
// 参加者の表示名はsanitizerでHTMLタグを除去してから保持する
// （設定ファイル経由のXSSを読み込みゲートで遮断する）。
// バリデーション失敗は起動エラーであり、黙って補正しない。
func LoadCalendar(path string, sanitizer security.NameSanitizerService) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar config: %w", err)
	}

	var raw calendarYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse calendar config: %w", err)
	}

	cal := &Calendar{
		AppName: raw.AppName,
	}
	if cal.AppName == "" {
		cal.AppName = "Availability Calendar"
	}

	// 参加者の検証: 1人以上、サニタイズ後も空でない一意な名前
	if len(raw.Participants) == 0 {
		return nil, fmt.Errorf("calendar config must define at least one participant")
	}
	seen := make(map[string]struct{}, len(raw.Participants))
	for i, p := range raw.Participants {
		name := p.Name
		if sanitizer != nil {
			name = sanitizer.SanitizeName(name)
		}
		if name == "" {
			return nil, fmt.Errorf("participant %d has an empty name after sanitization", i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate participant name: %s", name)
		}
		seen[name] = struct{}{}

		previous := make([]string, 0, len(p.PreviousNames))
		for _, old := range p.PreviousNames {
			if sanitizer != nil {
				old = sanitizer.SanitizeName(old)
			}
			if old != "" && old != name {
				previous = append(previous, old)
			}
		}

		cal.Participants = append(cal.Participants, model.Participant{
			Name:          name,
			Color:         p.Color,
			PreviousNames: previous,
		})
	}

	// 選択可能範囲の検証
	cal.MinDate, err = parseConfigDate("calendar.min_date", raw.Calendar.MinDate)
	if err != nil {
		return nil, err
	}
	cal.MaxDate, err = parseConfigDate("calendar.max_date", raw.Calendar.MaxDate)
	if err != nil {
		return nil, err
	}
	if cal.MaxDate < cal.MinDate {
		return nil, fmt.Errorf("calendar.max_date (%s) is before calendar.min_date (%s)", cal.MaxDate, cal.MinDate)
	}

	// 既定クォーラム: 未指定なら全員一致（参加者数）
	cal.DefaultQuorum = raw.MinUsersForShared
	if cal.DefaultQuorum == 0 {
		cal.DefaultQuorum = len(cal.Participants)
	}
	if cal.DefaultQuorum < 1 || cal.DefaultQuorum > len(cal.Participants) {
		return nil, fmt.Errorf("min_users_for_shared must be between 1 and %d, got %d", len(cal.Participants), raw.MinUsersForShared)
	}

	// サニティ境界: 未指定なら既定値
	cal.YearBounds = availability.YearBounds{Min: raw.YearBounds.Min, Max: raw.YearBounds.Max}
	if cal.YearBounds == (availability.YearBounds{}) {
		cal.YearBounds = availability.DefaultYearBounds
	}
	if cal.YearBounds.Max < cal.YearBounds.Min {
		return nil, fmt.Errorf("year_bounds.max (%d) is less than year_bounds.min (%d)", cal.YearBounds.Max, cal.YearBounds.Min)
	}

	return cal, nil
}

// parseConfigDate は設定ファイル上のYYYY-MM-DD文字列をDayに変換する。
func parseConfigDate(field, value string) (model.Day, error) {
	if value == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a YYYY-MM-DD date: %w", field, err)
	}
	return model.DayFromTime(t), nil
}

// ParticipantByName は指定名の参加者を返す。存在しない場合はfalseを返す。
func (c *Calendar) ParticipantByName(name string) (model.Participant, bool) {
	for _, p := range c.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return model.Participant{}, false
}

// Names は参加者名の一覧を設定ファイルの順序で返す。
func (c *Calendar) Names() []string {
	names := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		names[i] = p.Name
	}
	return names
}

// RenameMapping は名前変更リコンサイル用のマッピング（新名 -> 旧名リスト）を返す。
// previous_namesを持たない参加者は含まれない。
func (c *Calendar) RenameMapping() map[string][]string {
	mapping := make(map[string][]string)
	for _, p := range c.Participants {
		if len(p.PreviousNames) > 0 {
			mapping[p.Name] = p.PreviousNames
		}
	}
	return mapping
}

// InRange は日付がカレンダーの選択可能範囲内かを返す。
func (c *Calendar) InRange(day model.Day) bool {
	return day >= c.MinDate && day <= c.MaxDate
}
