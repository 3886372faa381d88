// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService は設定ファイル由来の参加者表示名をサニタイズし、
// UIにそのまま描画されてもXSS攻撃が成立しないようにする。
// bluemondayのStrictPolicy（全タグ除去）を使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は表示名のサニタイズ機能のインターフェースを定義する。
// 設定ファイルの読み込み時に参加者名へ適用される。
type NameSanitizerService interface {
	// SanitizeName は表示名からHTMLタグを除去し、前後の空白を取り除いて返す。
	// "Josh & Karen" のような記号を含む通常の名前はそのまま通過する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeName(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグを除去するため、表示名に許可されるHTMLはない。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名からHTMLタグを除去して返す。
// StrictPolicyはテキストをHTMLエンティティにエスケープするため、
// "&" などの記号を元に戻すためにアンエスケープを行う。
func (s *nameSanitizer) SanitizeName(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(name)))
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
