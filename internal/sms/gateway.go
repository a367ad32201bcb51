package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMissingToken is returned when the gateway is called without credentials.
var ErrMissingToken = errors.New("sms api token not configured")

// Sender delivers an OTP code to a mobile number.
type Sender interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

type Config struct {
	APIURL   string
	APIToken string
	Template int
	Timeout  time.Duration
}

type otpPayload struct {
	Code     string `json:"code"`
	Mobile   string `json:"mobile"`
	Template int    `json:"template"`
}

// Gateway sends OTP codes through the HTTP SMS provider.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *logrus.Logger
}

func NewGateway(cfg Config, client *http.Client, logger *logrus.Logger) *Gateway {
	if client == nil {
		client = &http.Client{}
	}
	return &Gateway{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// SendOTP posts the code to the provider. The call is bounded by the
// configured timeout and is never retried.
func (g *Gateway) SendOTP(ctx context.Context, mobile, code string) error {
	if g.cfg.APIToken == "" {
		return ErrMissingToken
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(otpPayload{
		Code:     code,
		Mobile:   mobile,
		Template: g.cfg.Template,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("accept", "text/plain")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("sms api timeout after %s: %w", g.cfg.Timeout, err)
		}
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		g.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(errorText),
		}).Error("SMS API error")
		return fmt.Errorf("sms api returned status %d", resp.StatusCode)
	}

	return nil
}

// LogSender writes codes to the operational log instead of sending them.
// It is used in development mode for manual testing.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(_ context.Context, mobile, code string) error {
	s.logger.WithFields(logrus.Fields{
		"mobile": mobile,
		"otp":    code,
	}).Warn("DEV MODE: SMS OTP code (not sent)")
	return nil
}
