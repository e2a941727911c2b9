// Package security はアプリケーションのセキュリティ機能を提供する。
//
// Sanitizer は利用者が入力したキャンペーン情報とメッセージ本文を保存前に無害化する。
// 本文類はタグを一切許可せず、コンテンツガイドラインのみ簡単な書式を許可する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は利用者入力の無害化インターフェース。
type Sanitizer interface {
	// Text は全てのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	Text(raw string) string

	// Rich は段落・改行・リスト・強調のみを許可したHTMLを返す。
	// リンクと画像は許可しない。
	Rich(raw string) string
}

type sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerの新しいインスタンスを生成する。
func NewSanitizer() *sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"strong", "em", "blockquote",
	)

	return &sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// Text は全てのHTMLタグを除去する。
func (s *sanitizer) Text(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

// Rich は許可タグ以外を除去する。
func (s *sanitizer) Rich(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}
