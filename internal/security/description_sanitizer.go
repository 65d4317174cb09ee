// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer はカレンダーイベントの説明文に含まれるHTMLをサニタイズする。
// サニタイズ結果は表示用の別フィールドとして返し、元の説明文は変更しない。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はイベント説明文のサニタイズ機能のインターフェース。
type DescriptionSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, b, i, u, strong, em, span）のみを通過させる。
	// aタグのhrefはhttp, https, mailtoのみ許可し、target="_blank"とrel="noopener noreferrer"を付与する。
	// プレーンテキストはエスケープ以外の変更を受けない。
	Sanitize(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerを生成する。
// Googleカレンダーの説明文エディタが出力するタグを許可する。
func NewDescriptionSanitizer() DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"b", "i", "u", "strong", "em", "span",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &descriptionSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
