// Package security はアプリケーションのセキュリティ機能を提供する。
//
// Sanitizer はカンファレンスの概要や論文募集要項など、利用者が入力した
// 自由記述テキストを保存前に無害化する。
package security

import (
	"errors"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// maxSanitizePasses はサニタイズとテキスト復元を繰り返す上限回数。
const maxSanitizePasses = 4

// Sanitizer は自由記述テキストのサニタイズ機能のインターフェース。
type Sanitizer interface {
	// Sanitize は許可タグ以外を除去し、前後の空白を取り除いたテキストを返す。
//
// 許可タグ以外の本文はエスケープせずに返すため、"R&D < 5ms" のような
// プレーンテキストは入力どおりに保存される。復元した本文がタグとして
// 解釈されうる場合（"&lt;script&gt;" など）は再度サニタイズし、結果が
// 変化しなくなるまで繰り返す。上限回数までに収束しない場合は
// bluemondayのエスケープ済み出力を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cur := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next, err := unescapeText(s.policy.Sanitize(cur))
		if err != nil {
			break
		}
		if next == cur {
			return strings.TrimSpace(next)
		}
		cur = next
	}
	return strings.TrimSpace(s.policy.Sanitize(cur))
}

// unescapeText はタグをそのまま残し、テキストノードの文字参照だけを復元する。
func unescapeText(sanitized string) (string, error) {
	var out strings.Builder
	z := html.NewTokenizer(strings.NewReader(sanitized))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return out.String(), nil
		case html.TextToken:
			out.Write(z.Text())
		default:
			out.Write(z.Raw())
		}
	}
}
