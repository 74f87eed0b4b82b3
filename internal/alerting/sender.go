package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender delivers a text message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, to, from, body string) (string, error)
}

const whatsappPrefix = "whatsapp:"

// TwilioSender posts WhatsApp messages through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewTwilioSender constructs a Twilio transport.
func NewTwilioSender(accountSID, authToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TwilioSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "sender_twilio").Logger(),
	}
}

// WhatsAppAddress adds the channel prefix Twilio expects, once.
func WhatsAppAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.HasPrefix(addr, whatsappPrefix) {
		return addr
	}
	return whatsappPrefix + addr
}

// Send creates a message resource and returns its SID.
func (s *TwilioSender) Send(ctx context.Context, to, from, body string) (string, error) {
	form := url.Values{}
	form.Set("To", WhatsAppAddress(to))
	form.Set("From", WhatsAppAddress(from))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send twilio request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read twilio response: %w", err)
	}

	var result struct {
		SID     string `json:"sid"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Message != "" {
			return "", fmt.Errorf("twilio error (%d/%d): %s", resp.StatusCode, result.Code, result.Message)
		}
		return "", fmt.Errorf("twilio error (%d)", resp.StatusCode)
	}
	if result.SID == "" {
		return "", fmt.Errorf("twilio response missing sid")
	}

	s.logger.Info().Str("to", to).Str("sid", result.SID).Msg("message sent")
	return result.SID, nil
}

// TelegramSender delivers through the Telegram Bot API; to is the chat id.
type TelegramSender struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramSender constructs a Telegram transport.
func NewTelegramSender(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramSender{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "sender_telegram").Logger(),
	}
}

// Send calls sendMessage. The from address is ignored; the bot is the sender.
func (n *TelegramSender) Send(ctx context.Context, to, _ string, body string) (string, error) {
	payload := map[string]string{
		"chat_id": to,
		"text":    body,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal telegram payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode telegram response: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("telegram returned ok=false: %s", result.Description)
	}

	id := strconv.FormatInt(result.Result.MessageID, 10)
	n.logger.Info().Str("chat_id", to).Str("message_id", id).Msg("message sent")
	return id, nil
}

// LogSender writes messages to the log instead of a transport.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender constructs the development transport.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "sender_log").Logger()}
}

func (l *LogSender) Send(_ context.Context, to, from, body string) (string, error) {
	id := "log-" + uuid.NewString()
	l.logger.Info().Str("to", to).Str("from", from).Str("id", id).Msg(body)
	return id, nil
}

var (
	_ Sender = (*TwilioSender)(nil)
	_ Sender = (*TelegramSender)(nil)
	_ Sender = (*LogSender)(nil)
)
