package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/availcal/internal/model"
)

// PostgresAvailabilityRepo はPostgreSQLを使用した選択日リポジトリ。
type PostgresAvailabilityRepo struct {
	db *sql.DB
}

// NewPostgresAvailabilityRepo はPostgresAvailabilityRepoを生成する。
func NewPostgresAvailabilityRepo(db *sql.DB) *PostgresAvailabilityRepo {
	return &PostgresAvailabilityRepo{db: db}
}

// FetchAll は全参加者の選択日を participant_name, selected_date 順で取得する。
func (r *PostgresAvailabilityRepo) FetchAll(ctx context.Context) ([]model.AvailabilityRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT participant_name, selected_date
		 FROM participant_availability
		 ORDER BY participant_name, selected_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability records: %w", err)
	}
	defer rows.Close()

	var records []model.AvailabilityRecord
	for rows.Next() {
		var name string
		var date time.Time
		if err := rows.Scan(&name, &date); err != nil {
			return nil, fmt.Errorf("failed to scan availability record: %w", err)
		}
		records = append(records, model.AvailabilityRecord{
			ParticipantName: name,
			SelectedDate:    model.DayFromTime(date),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate availability records: %w", err)
	}

	return records, nil
}

// ListByParticipant は指定参加者の選択日を昇順で取得する。
func (r *PostgresAvailabilityRepo) ListByParticipant(ctx context.Context, name string) ([]model.Day, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT selected_date
		 FROM participant_availability
		 WHERE participant_name = $1
		 ORDER BY selected_date`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dates for participant: %w", err)
	}
	defer rows.Close()

	var dates []model.Day
	for rows.Next() {
		var date time.Time
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan selected date: %w", err)
		}
		dates = append(dates, model.DayFromTime(date))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate selected dates: %w", err)
	}

	return dates, nil
}

// ReplaceParticipantDates は指定参加者の選択日を全置換する。
// 同一トランザクション内で既存行を削除してから挿入する。
func (r *PostgresAvailabilityRepo) ReplaceParticipantDates(ctx context.Context, name string, dates []model.Day) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 既存行を削除
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM participant_availability WHERE participant_name = $1`,
		name,
	); err != nil {
		return fmt.Errorf("failed to delete existing dates: %w", err)
	}

	// 新しい選択日を挿入
	for _, date := range dates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participant_availability (id, participant_name, selected_date, updated_at)
			 VALUES ($1, $2, $3, now())`,
			uuid.NewString(), name, date.Time(),
		); err != nil {
			return fmt.Errorf("failed to insert date %s: %w", date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddDate は指定参加者に1日を追加する。既に存在する場合は更新日時のみ更新する。
func (r *PostgresAvailabilityRepo) AddDate(ctx context.Context, name string, date model.Day) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participant_availability (id, participant_name, selected_date, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (participant_name, selected_date)
		 DO UPDATE SET updated_at = now()`,
		uuid.NewString(), name, date.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to add date: %w", err)
	}
	return nil
}

// RemoveDate は指定参加者から1日を削除する。存在しない日の削除はエラーにしない。
func (r *PostgresAvailabilityRepo) RemoveDate(ctx context.Context, name string, date model.Day) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM participant_availability
		 WHERE participant_name = $1 AND selected_date = $2`,
		name, date.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to remove date: %w", err)
	}
	return nil
}

// ReconcileRenames は旧名で永続化された行を新名に付け替える。
// 冪等: 旧名の行が存在しなければ何もしない。
// 新名側に同一日が既に存在する場合は旧名側の行を削除して一意制約違反を避ける。
func (r *PostgresAvailabilityRepo) ReconcileRenames(ctx context.Context, mapping map[string][]string) error {
	if len(mapping) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for newName, oldNames := range mapping {
		if len(oldNames) == 0 {
			continue
		}

		// 新名側と同一日を持つ旧名の行を先に削除する
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM participant_availability src
			 USING participant_availability dst
			 WHERE src.participant_name = ANY($1)
			   AND dst.participant_name = $2
			   AND src.selected_date = dst.selected_date`,
			pq.Array(oldNames), newName,
		); err != nil {
			return fmt.Errorf("failed to delete conflicting rows for %q: %w", newName, err)
		}

		// 残った旧名の行を新名に付け替える
		if _, err := tx.ExecContext(ctx,
			`UPDATE participant_availability
			 SET participant_name = $1, updated_at = now()
			 WHERE participant_name = ANY($2)`,
			newName, pq.Array(oldNames),
		); err != nil {
			return fmt.Errorf("failed to rename rows to %q: %w", newName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ AvailabilityRepository = (*PostgresAvailabilityRepo)(nil)
