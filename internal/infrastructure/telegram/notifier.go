package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/ports"
)

// Notifier pushes adverse findings to a compliance chat via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.AlertNotifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyAdverse posts a summary of one adverse screening result.
func (n *Notifier) NotifyAdverse(ctx context.Context, result domain.ScreeningResult) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", formatAlert(result))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

func formatAlert(result domain.ScreeningResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Adverse media hit*\n")
	fmt.Fprintf(&b, "Subject: %s\n", result.Request.SubjectName)
	fmt.Fprintf(&b, "Status: %s (%s, p=%.2f)\n", result.FinalStatus, result.Match.Confidence, result.Match.Probability)
	if result.Risk != nil {
		fmt.Fprintf(&b, "Severity: %s, category: %s\n", result.Risk.Severity, result.Risk.Category)
	}
	if result.Article.URL != "" {
		fmt.Fprintf(&b, "Article: %s\n", result.Article.URL)
	}
	fmt.Fprintf(&b, "Run: %s", result.Request.ID)
	return b.String()
}
