package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier は通知の配送先。Sendはctxの期限を守ること。
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// PermanentError は再試行しても成功しない配送失敗を表す。
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent はerrが再試行不要の失敗かを返す。
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// LogNotifier は通知を構造化ログに出力する。配送先が未設定の環境で使用する。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier はLogNotifierを生成する。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send は通知内容をINFOで記録する。
func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "admin notification",
		slog.String("message_id", msg.ID),
		slog.String("recipient_id", msg.Recipient.UserID),
		slog.String("recipient_email", msg.Recipient.Email),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// webhookPayload はWebhookに送信するJSON。
type webhookPayload struct {
	ID             string    `json:"id"`
	RecipientID    string    `json:"recipientId"`
	RecipientName  string    `json:"recipientName"`
	RecipientEmail string    `json:"recipientEmail"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

// WebhookNotifier は通知をJSONでHTTP POSTする。
// クライアントにはsecurity.URLGuardが生成するSSRF防止付きのものを渡す。
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier はWebhookNotifierを生成する。
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: client, now: time.Now}
}

// Send は通知をPOSTする。
// 2xxは成功、429と5xxは再試行可能、それ以外の4xxはPermanentErrorとする。
func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		ID:             msg.ID,
		RecipientID:    msg.Recipient.UserID,
		RecipientName:  msg.Recipient.Name,
		RecipientEmail: msg.Recipient.Email,
		Subject:        msg.Subject,
		Body:           msg.Body,
		SentAt:         n.now().UTC(),
	})
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("通知のエンコードに失敗しました: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Confman/1.0 Notifier")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("Webhookの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("Webhookが一時的なエラーを返しました: status %d", resp.StatusCode)
	default:
		return &PermanentError{Err: fmt.Errorf("Webhookがエラーを返しました: status %d", resp.StatusCode)}
	}
}
