// Package model はドメインモデルを定義する。
package model

// Participant は設定ファイルで定義される固定メンバーを表す。
// Nameは実行中の一意な識別子であり、PreviousNamesは永続化データの
// 名前変更リコンサイル（起動時の一括移行）にのみ使用される。
// Colorは表示専用で、共有日の計算には一切関与しない。
type Participant struct {
	Name          string
	Color         string
	PreviousNames []string
}

// Selection は1人の参加者の選択日コレクションのスナップショットを表す。
// Datesには正規化前の生の日付入力を保持する（文字列・time.Time・
// エポックミリ秒などが混在しうる）。エンジンは入力を変更しない。
type Selection struct {
	Name  string
	Dates []any

	// Malformed は日付コレクションがそもそもリストとしてデコードできなかった
	// ことを示す。Malformedな参加者はクォーラムの分母には数えられるが、
	// どの日付のカバレッジにも寄与しない。
	Malformed bool
}

// AvailabilityRecord は永続化ストアの1行（参加者名と選択日）を表す。
type AvailabilityRecord struct {
	ParticipantName string
	SelectedDate    Day
}
