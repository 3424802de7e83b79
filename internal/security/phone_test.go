package security

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		region string
		want   string
	}{
		{name: "国内番号をE.164に変換", raw: "5551234567", region: "US", want: "+15551234567"},
		{name: "区切り文字を除去", raw: "(555) 123-4567", region: "US", want: "+15551234567"},
		{name: "国番号付きはそのまま正規化", raw: "+44 20 7946 0958", region: "US", want: "+442079460958"},
		{name: "前後の空白を除去", raw: "  5551234567 ", region: "US", want: "+15551234567"},
		{name: "解釈できない入力は保持", raw: "not-a-phone", region: "US", want: "not-a-phone"},
		{name: "空文字列", raw: "", region: "US", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.raw, tt.region); got != tt.want {
				t.Errorf("NormalizePhone(%q, %q) = %q, want %q", tt.raw, tt.region, got, tt.want)
			}
		})
	}
}
