// Package model はドメインモデルを定義する。
package model

import "time"

// ConferenceStatus はカンファレンスの審査状態を表す。
type ConferenceStatus string

const (
	// ConferenceStatusPending は審査待ち。作成直後の状態。
	ConferenceStatusPending ConferenceStatus = "PENDING"
	// ConferenceStatusApproved は承認済み。
	ConferenceStatusApproved ConferenceStatus = "APPROVED"
)

// ResearchAreas は主分野名から副分野名の順序付きリストへの対応。
type ResearchAreas map[string][]string

// Conference はカンファレンスのレコードを表す。
// OwnerID（メインチェア）は作成時に一度だけ設定され、以後変更されない。
type Conference struct {
	ID                  string
	OwnerID             string
	Status              ConferenceStatus
	IsPublic            bool
	IsDeleted           bool
	Title               string
	Acronym             string
	Description         string
	LocationVenue       string
	LocationCity        string
	LocationCountry     string
	CallForPapers       string
	WebsiteURL          string
	StartDate           time.Time
	EndDate             time.Time
	AbstractDeadline    time.Time
	SubmissionDeadline  time.Time
	CameraReadyDeadline time.Time
	ResearchAreas       ResearchAreas
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ConferenceWithOwner はカンファレンスとメインチェアの連絡先を結合したもの。
// usersテーブルとJOINして取得される。
type ConferenceWithOwner struct {
	Conference
	Owner *OwnerContact
}

// OwnerContact はメインチェアの連絡先。管理者にのみ公開される。
type OwnerContact struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// DisplayName は姓名を連結した表示名を返す。
func (o OwnerContact) DisplayName() string {
	switch {
	case o.FirstName == "":
		return o.LastName
	case o.LastName == "":
		return o.FirstName
	default:
		return o.FirstName + " " + o.LastName
	}
}

// CreateConferenceInput はカンファレンス作成時の入力。
type CreateConferenceInput struct {
	Title               string
	Acronym             string
	Description         string
	LocationVenue       string
	LocationCity        string
	LocationCountry     string
	CallForPapers       string
	WebsiteURL          string
	StartDate           time.Time
	EndDate             time.Time
	AbstractDeadline    time.Time
	SubmissionDeadline  time.Time
	CameraReadyDeadline time.Time
	IsPublic            bool
	ResearchAreas       ResearchAreas
}

// ConferenceOrder は一覧取得時の並び順。
type ConferenceOrder string

const (
	// OrderByStartDateAsc は開催日の昇順。
	OrderByStartDateAsc ConferenceOrder = "start_date_asc"
	// OrderByCreatedAtDesc は作成日時の降順。
	OrderByCreatedAtDesc ConferenceOrder = "created_at_desc"
)

// ConferenceFilter は一覧取得時の行フィルタ。
// 論理削除済みのレコードはフィルタの内容に関わらず常に除外される。
type ConferenceFilter struct {
	Status     *ConferenceStatus // nilの場合は状態で絞り込まない
	PublicOnly bool              // trueの場合はis_public = trueのみ
	OrderBy    ConferenceOrder
}
