// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, calendar, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidQuorum      = "INVALID_QUORUM"
	ErrCodeUnknownParticipant = "UNKNOWN_PARTICIPANT"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeDateOutOfRange     = "DATE_OUT_OF_RANGE"
	ErrCodeICSURLBlocked      = "ICS_URL_BLOCKED"
	ErrCodeICSFetchFailed     = "ICS_FETCH_FAILED"
	ErrCodeICSParseFailed     = "ICS_PARSE_FAILED"
)

// NewInvalidQuorumError はクォーラムが有効範囲外の場合のエラーを生成する。
// クォーラムは1以上かつ参加者数以下でなければならない。黙ってクランプしない。
func NewInvalidQuorumError(quorum, participants int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuorum,
		Message:  fmt.Sprintf("無効なクォーラムです: %d（参加者数: %d）", quorum, participants),
		Category: "validation",
		Action:   "クォーラムには1以上、参加者数以下の整数を指定してください。",
	}
}

// NewInvalidQuorumParamError はquorumクエリパラメータが解釈できない場合のエラーを生成する。
// 受け付けるのは1以上の整数と特別値 "everyone" のみ。
func NewInvalidQuorumParamError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuorum,
		Message:  fmt.Sprintf("quorumパラメータが解釈できません: %q", raw),
		Category: "validation",
		Action:   "quorumには1以上の整数、または \"everyone\" を指定してください。",
	}
}

// NewUnknownParticipantError は設定に存在しない参加者名が指定された場合のエラーを生成する。
func NewUnknownParticipantError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownParticipant,
		Message:  fmt.Sprintf("指定された参加者が見つかりません: %s", name),
		Category: "validation",
		Action:   "設定ファイルに定義されている参加者名を指定してください。",
	}
}

// NewInvalidDateError は日付入力が正規化できない場合のエラーを生成する。
func NewInvalidDateError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", input),
		Category: "validation",
		Action:   "YYYY-MM-DD形式の実在するカレンダー日付を指定してください。",
	}
}

// NewDateOutOfRangeError はカレンダーの選択可能範囲外の日付が指定された場合のエラーを生成する。
func NewDateOutOfRangeError(day, min, max Day) *APIError {
	return &APIError{
		Code:     ErrCodeDateOutOfRange,
		Message:  fmt.Sprintf("日付が選択可能範囲外です: %s（範囲: %s〜%s）", day, min, max),
		Category: "validation",
		Action:   "カレンダーの選択可能範囲内の日付を指定してください。",
	}
}

// NewICSURLBlockedError はICSインポートURLがセキュリティポリシーでブロックされた場合のエラーを生成する。
func NewICSURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeICSURLBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているカレンダーのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewICSFetchFailedError はICSカレンダーの取得に失敗した場合のエラーを生成する。
func NewICSFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeICSFetchFailed,
		Message:  fmt.Sprintf("カレンダーの取得に失敗しました: %s", reason),
		Category: "calendar",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewICSParseFailedError はICSカレンダーの解析に失敗した場合のエラーを生成する。
func NewICSParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeICSParseFailed,
		Message:  "カレンダーの解析に失敗しました。",
		Category: "calendar",
		Action:   "有効なiCalendar（ICS）形式かどうか確認してください。",
	}
}
