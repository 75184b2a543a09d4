package notify

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/models"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram delivers dashboard events to a chat via the bot API. Every
// delivery is best-effort: failures are logged and swallowed, and the
// session-event methods return before the HTTP call completes so the
// detector's close path never blocks on the network.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewTelegram builds the notifier. An empty token or chat id disables it.
func NewTelegram(token, chatID string, logger *zap.Logger) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Enabled reports whether credentials are configured.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// SessionStarted announces a new charging session.
func (t *Telegram) SessionStarted(session models.Session) {
	t.sendAsync(fmt.Sprintf("🔌 <b>Charging Started</b>\n👤 User: %s", session.User))
}

// SessionCompleted announces a closed session with its computed metrics.
func (t *Telegram) SessionCompleted(session models.Session) {
	t.sendAsync(fmt.Sprintf(
		"⚡ <b>Charging Complete!</b>\n🔋 Energy: %.1f kWh (+%.0f%%)\n💰 Cost: %.2f\n👤 User: %s",
		session.EnergyKWh,
		session.BatteryPercentGained,
		session.CostEstimate,
		session.User,
	))
}

// ChargerError forwards a charger fault. Deduplication happens upstream.
func (t *Telegram) ChargerError(details string) {
	t.sendAsync(fmt.Sprintf("⚠️ <b>Charger Error!</b>\n%s", details))
}

// Test sends a test message synchronously so the API can report the outcome.
func (t *Telegram) Test() error {
	if !t.Enabled() {
		return fmt.Errorf("notify: telegram is not configured")
	}
	return t.sendMessage("⚡ Test notification from the charger dashboard.")
}

func (t *Telegram) sendAsync(text string) {
	if !t.Enabled() {
		return
	}
	go func() {
		if err := t.sendMessage(text); err != nil {
			t.logger.Warn("telegram delivery failed", zap.Error(err))
		}
	}()
}

func (t *Telegram) sendMessage(text string) error {
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	resp, err := t.client.PostForm(endpoint, form)
	if err != nil {
		return fmt.Errorf("notify: send message: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// SendDocument uploads a file to the chat, used by the daily sessions backup.
func (t *Telegram) SendDocument(filename string, content []byte, caption string) error {
	if !t.Enabled() {
		return fmt.Errorf("notify: telegram is not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("notify: build upload: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("notify: build upload: %w", err)
		}
	}
	if err := writer.WriteField("disable_notification", "true"); err != nil {
		return fmt.Errorf("notify: build upload: %w", err)
	}
	part, err := writer.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("notify: build upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("notify: build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("notify: build upload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", t.baseURL, t.token)
	resp, err := t.client.Post(endpoint, writer.FormDataContentType(), &body)
	if err != nil {
		return fmt.Errorf("notify: send document: %w", err)
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("notify: telegram api status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
