package listing

import (
	"strings"

	"golang.org/x/net/html"
)

// Excerpt はHTMLの説明文からテキストのみを取り出し、maxRunes文字以内に切り詰める。
// 切り詰めた場合は末尾に"..."を付ける。
func Excerpt(description string, maxRunes int) string {
	tokenizer := html.NewTokenizer(strings.NewReader(description))
	var parts []string

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}

	text := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	r := []rune(text)
	if maxRunes <= 0 || len(r) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}
