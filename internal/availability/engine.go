package availability

import (
	"sort"

	"github.com/hitoshi/availcal/internal/model"
)

// Engine は共有可能日の積集合計算を行う。
// 入力スナップショットを変更しない純粋なリードオンリー消費者であり、
// 共有可変状態を持たないため複数ゴルーチンから同時に呼び出せる。
type Engine struct {
	normalizer *Normalizer
}

// NewEngine は指定されたNormalizerを使用するEngineを生成する。
// normalizerがnilの場合は既定のサニティ境界を持つNormalizerを使用する。
func NewEngine(normalizer *Normalizer) *Engine {
	if normalizer == nil {
		normalizer = NewNormalizer(YearBounds{})
	}
	return &Engine{normalizer: normalizer}
}

// ComputeShared はクォーラム（最低共有人数）を満たす日付を昇順で返す。
// 詳細はComputeSharedStatsを参照。
func (e *Engine) ComputeShared(selections []model.Selection, quorum int) ([]model.Day, error) {
	days, _, err := e.ComputeSharedStats(selections, quorum)
	return days, err
}

// ComputeSharedStats はComputeSharedと同じ計算を行い、
// 正規化ゲートで拒否された日付入力の件数もあわせて返す（メトリクス用）。
//
// アルゴリズム:
//  1. 各参加者の生日付を正規化し、拒否された入力は黙って除外する
//     （1人の壊れたデータが全体の結果を壊してはならない）。
//  2. 参加者ごとにカノニカルキーで重複排除する（同一日の重複は1回だけ数える）。
//  3. map[Day]intでカバレッジ（その日を持つ参加者数）を数える。O(U·D)。
//  4. カバレッジ >= quorum の日付のみ残し、昇順でソートして返す。
//
// Malformedな参加者（日付コレクションがリストでない）は分母に数えられるが、
// どの日付のカバレッジにも寄与しない。
// 結果は入力順に依存せず、同一入力に対して常に同一の結果を返す。
// クォーラムを満たす日付がない場合は空スライスを返す（エラーではない）。
//
// quorum < 1 の場合、または参加者が存在するのに quorum が参加者数を超える
// 場合はINVALID_QUORUMエラーを返す。黙ってクランプすると設定ミスが隠蔽される。
// 参加者ゼロは自明に空の結果でありエラーではない。
func (e *Engine) ComputeSharedStats(selections []model.Selection, quorum int) ([]model.Day, int, error) {
	if quorum < 1 {
		return nil, 0, model.NewInvalidQuorumError(quorum, len(selections))
	}
	if len(selections) == 0 {
		return []model.Day{}, 0, nil
	}
	if quorum > len(selections) {
		return nil, 0, model.NewInvalidQuorumError(quorum, len(selections))
	}

	rejected := 0
	coverage := make(map[model.Day]int)

	for _, sel := range selections {
		if sel.Malformed {
			continue
		}

		seen := make(map[model.Day]struct{}, len(sel.Dates))
		for _, raw := range sel.Dates {
			day, err := e.normalizer.Normalize(raw)
			if err != nil {
				rejected++
				continue
			}
			if _, dup := seen[day]; dup {
				continue
			}
			seen[day] = struct{}{}
			coverage[day]++
		}
	}

	result := make([]model.Day, 0, len(coverage))
	for day, count := range coverage {
		if count >= quorum {
			result = append(result, day)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	return result, rejected, nil
}
