// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はバックエンドが返したHTMLエラーページなどの本文を、
// JSONエラーレスポンスに埋め込める平文に変換する。
// bluemondayのStrictPolicyで全タグを除去し、空白を畳み込んだうえで長さを制限する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// truncationSuffix は切り詰めた本文の末尾に付ける記号。
const truncationSuffix = "..."

// TextSanitizer はHTMLを平文に変換する。複数のgoroutineから同時に使用できる。
type TextSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewTextSanitizer は新しいTextSanitizerを生成する。
// maxRunesが0以下の場合は長さを制限しない。
func NewTextSanitizer(maxRunes int) *TextSanitizer {
	p := bluemonday.StrictPolicy()
	// 隣接する要素のテキストが連結されないようにする
	p.AddSpaceWhenStrippingTag(true)

	return &TextSanitizer{
		policy:   p,
		maxRunes: maxRunes,
	}
}

// Sanitize はrawからタグを除去した平文を返す。
// script・styleの中身も除去され、文字参照は元の文字に戻す。
// 空白のみの入力には空文字列を返す。
func (s *TextSanitizer) Sanitize(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")
	return s.truncate(text)
}

func (s *TextSanitizer) truncate(text string) string {
	if s.maxRunes <= 0 || utf8.RuneCountInString(text) <= s.maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:s.maxRunes]) + truncationSuffix
}
