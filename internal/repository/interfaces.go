// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/availcal/internal/model"
)

// AvailabilityRepository は参加者の選択日データの永続化インターフェース。
// 計算エンジンはこのインターフェース越しにしかストアを知らない。
type AvailabilityRepository interface {
	// FetchAll は全参加者の選択日を participant_name, selected_date 順で取得する。
	FetchAll(ctx context.Context) ([]model.AvailabilityRecord, error)

	// ListByParticipant は指定参加者の選択日を昇順で取得する。
	ListByParticipant(ctx context.Context, name string) ([]model.Day, error)

	// ReplaceParticipantDates は指定参加者の選択日を全置換する。
	// 同一トランザクション内で既存行を削除してから挿入する
	// （差分アップサートではなくdelete-then-insertのフル置換セマンティクス）。
	// datesが空の場合は削除のみ行う。
	ReplaceParticipantDates(ctx context.Context, name string, dates []model.Day) error

	// AddDate は指定参加者に1日を追加する。既に存在する場合は更新日時のみ更新する（冪等）。
	AddDate(ctx context.Context, name string, date model.Day) error

	// RemoveDate は指定参加者から1日を削除する。存在しない日の削除はエラーにしない（冪等）。
	RemoveDate(ctx context.Context, name string, date model.Day) error

	// ReconcileRenames は名前変更マッピング（新名 -> 旧名リスト）に基づき、
	// 旧名で永続化された行を新名に付け替える。起動時にのみ実行される冪等な
	// 一括移行であり、ライブ計算パスからは呼び出されない。
	// 新名の行と衝突する旧名の行は重複を避けるため削除される。
	ReconcileRenames(ctx context.Context, mapping map[string][]string) error
}
