// Package notify はカンファレンス作成時の管理者通知を提供する。
//
// 作成操作はDispatcherのキューにイベントを投入するだけで戻り、
// ワーカーが管理者の列挙、メッセージの組み立て、配送と再試行を行う。
// 配送の失敗はログとメトリクスに記録し、作成操作には伝播させない。
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/confman/internal/model"
)

// Recipient は通知の宛先。
type Recipient struct {
	UserID string
	Name   string
	Email  string
}

// Message は通知1件。IDは再試行をまたいで同一であり、受信側の重複排除に使用できる。
type Message struct {
	ID        string
	Recipient Recipient
	Subject   string
	Body      string
}

// ConferenceCreated はキューに投入される作成イベント。
type ConferenceCreated struct {
	ConferenceID string
	Title        string
	Acronym      string
	OwnerID      string
	StartDate    time.Time
	EndDate      time.Time
	CreatedAt    time.Time
}

// EventFromConference はレコードから作成イベントを組み立てる。
func EventFromConference(c *model.Conference) ConferenceCreated {
	return ConferenceCreated{
		ConferenceID: c.ID,
		Title:        c.Title,
		Acronym:      c.Acronym,
		OwnerID:      c.OwnerID,
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		CreatedAt:    c.CreatedAt,
	}
}

// RecipientFromUser はユーザーを宛先に変換する。
func RecipientFromUser(u *model.User) Recipient {
	return Recipient{
		UserID: u.ID,
		Name:   u.Contact().DisplayName(),
		Email:  u.Email,
	}
}

// RenderCreated は管理者1人分の審査依頼メッセージを組み立てる。
// 本文には作成者の表示名と連絡先を含める。reviewURLが空の場合はリンクを省略する。
func RenderCreated(ev ConferenceCreated, creator model.OwnerContact, admin Recipient, reviewURL string) Message {
	name := creator.DisplayName()
	if name == "" {
		name = creator.ID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s さん\n\n", admin.Name)
	fmt.Fprintf(&b, "新しいカンファレンスが登録され、審査待ちになっています。\n\n")
	fmt.Fprintf(&b, "タイトル: %s (%s)\n", ev.Title, ev.Acronym)
	if !ev.StartDate.IsZero() {
		fmt.Fprintf(&b, "開催期間: %s - %s\n", ev.StartDate.Format("2006-01-02"), ev.EndDate.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "メインチェア: %s", name)
	if creator.Email != "" {
		fmt.Fprintf(&b, " <%s>", creator.Email)
	}
	b.WriteString("\n")
	if reviewURL != "" {
		fmt.Fprintf(&b, "\n審査画面: %s\n", reviewURL)
	}

	return Message{
		ID:        uuid.NewString(),
		Recipient: admin,
		Subject:   fmt.Sprintf("[審査依頼] %s が %s を登録しました", name, ev.Acronym),
		Body:      b.String(),
	}
}
