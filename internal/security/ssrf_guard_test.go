package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewOutboundGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("expected custom Transport")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバック宛てのリクエストをブロックすることをテストする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewOutboundGuard().NewSafeClient(5 * time.Second)

	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateEndpoint は送信先URLの静的検証をテストする。
func TestValidateEndpoint(t *testing.T) {
	guard := NewOutboundGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "公開HTTPSは許可", url: "https://api.brevo.com/v3/smtp/email", wantErr: false},
		{name: "空URLは拒否", url: "", wantErr: true},
		{name: "httpは拒否", url: "http://api.example.com/send", wantErr: true},
		{name: "localhostは拒否", url: "https://localhost/send", wantErr: true},
		{name: "ループバックIPは拒否", url: "https://127.0.0.1/send", wantErr: true},
		{name: "プライベートIPは拒否", url: "https://10.0.0.5/send", wantErr: true},
		{name: "メタデータIPは拒否", url: "https://169.254.169.254/latest", wantErr: true},
		{name: "IPv6ループバックは拒否", url: "https://[::1]/send", wantErr: true},
		{name: "ホストなしは拒否", url: "https:///send", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateEndpoint(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
