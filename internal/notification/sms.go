package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/phone"
)

// Sender delivers a single SMS.
type Sender interface {
	Send(ctx context.Context, to, message string) error
	Name() string
}

// NewSender picks the SMS gateway named in cfg. Unknown names are an error;
// an empty name or "log" only writes to the log.
func NewSender(cfg config.SMSConfig) (Sender, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	switch cfg.Provider {
	case "", "log":
		return LogSender{}, nil
	case "termii":
		return &TermiiSender{cfg: cfg, client: client}, nil
	case "kudisms":
		return &KudiSender{cfg: cfg, client: client}, nil
	}
	return nil, fmt.Errorf("unsupported SMS provider %q", cfg.Provider)
}

type LogSender struct{}

func (LogSender) Name() string { return "log" }

func (LogSender) Send(ctx context.Context, to, message string) error {
	logger.Info("SMS (log only)", logger.Fields{logger.PhoneKey: phone.Mask(to), "length": len(message)})
	logger.Debug("SMS body", logger.Fields{logger.PhoneKey: phone.Mask(to), "message": message})
	return nil
}

type TermiiSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

func (s *TermiiSender) Name() string { return "termii" }

func (s *TermiiSender) Send(ctx context.Context, to, message string) error {
	body := map[string]string{
		"api_key": s.cfg.APIKey,
		"to":      to,
		"from":    s.cfg.SenderID,
		"sms":     message,
		"type":    "plain",
		"channel": "generic",
	}
	_, err := postJSON(ctx, s.client, strings.TrimRight(s.cfg.BaseURL, "/")+"/sms/send", "", body)
	return err
}

type KudiSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

func (s *KudiSender) Name() string { return "kudisms" }

func (s *KudiSender) Send(ctx context.Context, to, message string) error {
	body := map[string]string{
		"sender":     s.cfg.SenderID,
		"message":    message,
		"recipients": to,
	}
	raw, err := postJSON(ctx, s.client, strings.TrimRight(s.cfg.BaseURL, "/")+"/sms", s.cfg.APIKey, body)
	if err != nil {
		return err
	}

	var res struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("kudisms: decode response: %w", err)
	}
	if res.Status != "success" {
		return fmt.Errorf("kudisms: %s", res.Message)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url, token string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
