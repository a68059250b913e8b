package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const TELEGRAM_API = "https://api.telegram.org"

type TelegramConfig struct {
	ChatIDs []int  `yaml:"chatIds" json:"chatids"`
	APIKey  string `yaml:"apiKey" json:"apikey"`
	Enabled bool   `yaml:"enabled" json:"enabled"`

	// Overrides TELEGRAM_API
	APIURL string `yaml:"apiUrl" json:"-"`
}

type NotifyTelegram struct {
	config TelegramConfig
	client *http.Client
}

func NewTelegram(config TelegramConfig) *NotifyTelegram {

	if config.APIURL == "" {
		config.APIURL = TELEGRAM_API
	}

	return &NotifyTelegram{
		config: config,
		client: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func (n *NotifyTelegram) IsEnabled() bool {
	return n.config.Enabled && n.config.APIKey != "" && len(n.config.ChatIDs) > 0
}

// Send delivers msg to every chat id, returning the first failure after trying
// them all
func (n *NotifyTelegram) Send(ctx context.Context, msg string) error {

	// curl -G \
	//  --data-urlencode "chat_id=111112233" \
	//  --data-urlencode "text=$message" \
	//  https://api.telegram.org/bot${TOKEN}/sendMessage

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.config.APIURL, n.config.APIKey)

	var firstErr error

	for _, id := range n.config.ChatIDs {
		if err := n.sendMessage(ctx, endpoint, msg, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr == nil {
		log.WithField("MSG", msg).Info("Sent Telegram Message(s)")
	}

	return firstErr
}

func (n *NotifyTelegram) sendMessage(ctx context.Context, endpoint, msg string, chatID int) error {

	q := url.Values{}
	q.Set("chat_id", strconv.Itoa(chatID))
	q.Set("text", msg)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "Unable to make telegram request")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "Unable to send telegram message to %d", chatID)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Unable to read telegram message response")
	}

	log.WithField("Resp", string(body)).Debug("Telegram Reply")

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("Telegram returned %d for chat %d", resp.StatusCode, chatID)
	}

	return nil
}
