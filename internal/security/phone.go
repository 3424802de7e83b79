package security

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone は電話番号をE.164形式に正規化する。
// 番号として解釈できない場合は前後の空白を除いた入力をそのまま返す。
func NormalizePhone(raw, defaultRegion string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	num, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return trimmed
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
