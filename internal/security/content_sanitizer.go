package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は物件説明などユーザー入力HTMLのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は許可リストに含まれない要素と属性を除去したHTMLを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 物件説明で使う最小限の書式タグ（p, br, ul, ol, li, strong, em）のみ許可し、
// リンク・画像・スクリプト・style・on*イベント属性はすべて除去する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em",
	)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズし、前後の空白を除去して返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.policy.Sanitize(rawHTML))
}
