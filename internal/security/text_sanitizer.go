// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は購読経路（source）のような自由入力のタグ文字列から
// マークアップを除去し、プレーンテキストとして保存・表示できる形に整える。
// bluemondayのStrictPolicyを使用し、すべてのタグと属性を取り除く。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト化のインターフェースを定義する。
type TextSanitizerService interface {
	// SanitizeText は入力からすべてのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// エンティティはテキストに戻すため、"a &amp; b" は "a & b" になる。
	SanitizeText(raw string) string
}

// TextSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなため、単一インスタンスを共有してよい。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はマークアップを除去したプレーンテキストを返す。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ TextSanitizerService = (*TextSanitizer)(nil)
