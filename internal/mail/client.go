// Package mail はトランザクションメール送信APIのクライアントを提供する。
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
)

// Config はメール送信APIの設定。
type Config struct {
	Endpoint  string
	APIKey    string
	FromEmail string
	FromName  string
}

// Client はHTTP APIでメールを送信するクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
}

// NewClient はClientを生成する。httpClientには送信先を制限したクライアントを渡す。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg Config) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		cfg:        cfg,
	}
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	Sender      address   `json:"sender"`
	To          []address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

var otpTemplate = template.Must(template.New("otp").Parse(
	`<p>Your verification code is <strong>{{.Code}}</strong>.</p>` +
		`<p>The code expires in {{.Minutes}} minutes.</p>`,
))

// SendOTP は確認コードを記載したメールを送信する。
func (c *Client) SendOTP(ctx context.Context, to, code string, minutes int) error {
	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, struct {
		Code    string
		Minutes int
	}{code, minutes}); err != nil {
		return fmt.Errorf("failed to render otp mail: %w", err)
	}

	return c.send(ctx, sendRequest{
		Sender:      address{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		To:          []address{{Email: to}},
		Subject:     "Confirm your email",
		HTMLContent: body.String(),
	})
}

func (c *Client) send(ctx context.Context, payload sendRequest) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("mail api key is not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("mail api request failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("mail api returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("mail api returned status %d", resp.StatusCode)
	}
	return nil
}
