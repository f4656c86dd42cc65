// Package conference はカンファレンスのライフサイクル、可視性、入力検証と
// それらを束ねる操作サービスを提供する。
package conference

import (
	"time"

	"github.com/hitoshi/confman/internal/model"
)

// Transition は状態遷移の名前。ログとメトリクスのラベルに使用する。
type Transition string

const (
	TransitionCreate  Transition = "create"
	TransitionApprove Transition = "approve"
	TransitionDelete  Transition = "delete"
)

// NewPending は作成直後のカンファレンスを組み立てる。
// 状態は常にPENDING、論理削除フラグはfalse、メインチェアは作成者となる。
// is_publicは作成者の希望として保存されるが、承認されるまで可視性には影響しない。
func NewPending(in model.CreateConferenceInput, ownerID, id string, now time.Time) *model.Conference {
	areas := make(model.ResearchAreas, len(in.ResearchAreas))
	for primary, secondaries := range in.ResearchAreas {
		areas[primary] = append([]string(nil), secondaries...)
	}
	return &model.Conference{
		ID:                  id,
		OwnerID:             ownerID,
		Status:              model.ConferenceStatusPending,
		IsPublic:            in.IsPublic,
		IsDeleted:           false,
		Title:               in.Title,
		Acronym:             in.Acronym,
		Description:         in.Description,
		LocationVenue:       in.LocationVenue,
		LocationCity:        in.LocationCity,
		LocationCountry:     in.LocationCountry,
		CallForPapers:       in.CallForPapers,
		WebsiteURL:          in.WebsiteURL,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		AbstractDeadline:    in.AbstractDeadline,
		SubmissionDeadline:  in.SubmissionDeadline,
		CameraReadyDeadline: in.CameraReadyDeadline,
		ResearchAreas:       areas,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// CanApprove は承認の前提条件（PENDINGかつ未削除）を満たすかを返す。
// 実際の遷移はストアの条件付き更新で同じ条件を再検証する。
func CanApprove(c *model.Conference) bool {
	return c != nil && !c.IsDeleted && c.Status == model.ConferenceStatusPending
}

// CanSoftDelete は論理削除の前提条件（未削除）を満たすかを返す。
// 論理削除はどの状態からでも適用でき、取り消せない。
func CanSoftDelete(c *model.Conference) bool {
	return c != nil && !c.IsDeleted
}
