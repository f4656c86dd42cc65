package conference

import (
	"time"

	"github.com/hitoshi/confman/internal/model"
)

// Summary は一覧で返す要約フィールド。
type Summary struct {
	ID              string
	Title           string
	Acronym         string
	Description     string
	LocationCountry string
	StartDate       time.Time
	EndDate         time.Time
}

// Detail は単一取得で返すフィールド。
// Adminは呼び出し元が管理者の場合のみ設定される。
type Detail struct {
	ID                  string
	Status              model.ConferenceStatus
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
	ResearchAreas       model.ResearchAreas
	Admin               *AdminFields
}

// AdminFields は管理者にのみ公開される特権フィールド。
type AdminFields struct {
	OwnerID  string
	Owner    *model.OwnerContact
	IsPublic bool
}

// PublicListFilter は公開一覧の行フィルタ。
// 未削除かつ公開希望かつ承認済みのレコードを開催日の昇順で返す。
func PublicListFilter() model.ConferenceFilter {
	approved := model.ConferenceStatusApproved
	return model.ConferenceFilter{
		Status:     &approved,
		PublicOnly: true,
		OrderBy:    model.OrderByStartDateAsc,
	}
}

// PendingQueueFilter は管理者向け審査待ち一覧の行フィルタ。
// 公開一覧とは別の操作であり、is_publicに関わらず審査待ちを作成日時の降順で返す。
func PendingQueueFilter() model.ConferenceFilter {
	pending := model.ConferenceStatusPending
	return model.ConferenceFilter{
		Status:  &pending,
		OrderBy: model.OrderByCreatedAtDesc,
	}
}

// Matches はレコードがフィルタの条件を満たすかを返す。論理削除済みは常にfalse。
func Matches(c *model.Conference, f model.ConferenceFilter) bool {
	if c == nil || c.IsDeleted {
		return false
	}
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.PublicOnly && !c.IsPublic {
		return false
	}
	return true
}

// ProjectList はストアから返された行をフィルタで再検査し、要約に射影する。
// ストアの実装に不備があっても条件外の行は呼び出し元に渡らない。
func ProjectList(rows []*model.Conference, f model.ConferenceFilter) []Summary {
	out := make([]Summary, 0, len(rows))
	for _, c := range rows {
		if !Matches(c, f) {
			continue
		}
		out = append(out, ProjectSummary(c))
	}
	return out
}

// ProjectSummary は要約フィールドを取り出す。
func ProjectSummary(c *model.Conference) Summary {
	return Summary{
		ID:              c.ID,
		Title:           c.Title,
		Acronym:         c.Acronym,
		Description:     c.Description,
		LocationCountry: c.LocationCountry,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
	}
}

// Visible は呼び出し元が単一取得でレコードを閲覧できるかを返す。
//   - 論理削除済みは誰も閲覧できない
//   - 管理者はそれ以外のすべてを閲覧できる
//   - 管理者以外は公開希望かつ承認済みのもののみ閲覧できる
func Visible(caller model.Principal, c *model.Conference) bool {
	if c == nil || c.IsDeleted {
		return false
	}
	if model.IsAdmin(caller) {
		return true
	}
	return c.IsPublic && c.Status == model.ConferenceStatusApproved
}

// ProjectSingle は単一取得の結果を呼び出し元のロールに応じて射影する。
// 閲覧できない場合は存在しない場合と区別できないNOT_FOUNDを返す。
func ProjectSingle(caller model.Principal, id string, rec *model.ConferenceWithOwner) (*Detail, error) {
	if rec == nil || !Visible(caller, &rec.Conference) {
		return nil, model.NewConferenceNotFoundError(id)
	}
	d := projectDetail(&rec.Conference)
	if model.IsAdmin(caller) {
		d.Admin = &AdminFields{
			OwnerID:  rec.OwnerID,
			IsPublic: rec.IsPublic,
		}
		if rec.Owner != nil {
			owner := *rec.Owner
			d.Admin.Owner = &owner
		}
	}
	return d, nil
}

func projectDetail(c *model.Conference) *Detail {
	areas := make(model.ResearchAreas, len(c.ResearchAreas))
	for k, v := range c.ResearchAreas {
		areas[k] = append([]string(nil), v...)
	}
	return &Detail{
		ID:                  c.ID,
		Status:              c.Status,
		Title:               c.Title,
		Acronym:             c.Acronym,
		Description:         c.Description,
		LocationVenue:       c.LocationVenue,
		LocationCity:        c.LocationCity,
		LocationCountry:     c.LocationCountry,
		CallForPapers:       c.CallForPapers,
		WebsiteURL:          c.WebsiteURL,
		StartDate:           c.StartDate,
		EndDate:             c.EndDate,
		AbstractDeadline:    c.AbstractDeadline,
		SubmissionDeadline:  c.SubmissionDeadline,
		CameraReadyDeadline: c.CameraReadyDeadline,
		ResearchAreas:       areas,
	}
}
