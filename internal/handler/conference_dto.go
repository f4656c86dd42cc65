package handler

import (
	"time"

	"github.com/hitoshi/confman/internal/conference"
	"github.com/hitoshi/confman/internal/model"
)

// dateLayout は開催日・締切日の入出力フォーマット。
const dateLayout = "2006-01-02"

// createConferenceRequest はカンファレンス登録リクエストのボディ。
// 日付は "2006-01-02" またはRFC3339形式で受け付ける。
type createConferenceRequest struct {
	Title               string              `json:"title"`
	Acronym             string              `json:"acronym"`
	Description         string              `json:"description"`
	LocationVenue       string              `json:"locationVenue"`
	LocationCity        string              `json:"locationCity"`
	LocationCountry     string              `json:"locationCountry"`
	CallForPapers       string              `json:"callForPapers"`
	WebsiteURL          string              `json:"websiteUrl"`
	StartDate           string              `json:"startDate"`
	EndDate             string              `json:"endDate"`
	AbstractDeadline    string              `json:"abstractDeadline"`
	SubmissionDeadline  string              `json:"submissionDeadline"`
	CameraReadyDeadline string              `json:"cameraReadyDeadline"`
	IsPublic            bool                `json:"isPublic"`
	ResearchAreas       map[string][]string `json:"researchAreas"`
}

// toInput はリクエストを作成入力に変換する。
// 日付の形式が不正な場合はフィールドごとのVALIDATIONエラーを返す。
// 空の日付はゼロ値のまま渡し、必須チェックはサービス層に任せる。
func (req createConferenceRequest) toInput() (model.CreateConferenceInput, error) {
	fields := map[string]string{}
	date := func(name, raw string) time.Time {
		t, err := parseDate(raw)
		if err != nil {
			fields[name] = "日付の形式が正しくありません（YYYY-MM-DD）"
		}
		return t
	}

	in := model.CreateConferenceInput{
		Title:               req.Title,
		Acronym:             req.Acronym,
		Description:         req.Description,
		LocationVenue:       req.LocationVenue,
		LocationCity:        req.LocationCity,
		LocationCountry:     req.LocationCountry,
		CallForPapers:       req.CallForPapers,
		WebsiteURL:          req.WebsiteURL,
		StartDate:           date("startDate", req.StartDate),
		EndDate:             date("endDate", req.EndDate),
		AbstractDeadline:    date("abstractDeadline", req.AbstractDeadline),
		SubmissionDeadline:  date("submissionDeadline", req.SubmissionDeadline),
		CameraReadyDeadline: date("cameraReadyDeadline", req.CameraReadyDeadline),
		IsPublic:            req.IsPublic,
		ResearchAreas:       model.ResearchAreas(req.ResearchAreas),
	}
	if len(fields) > 0 {
		return model.CreateConferenceInput{}, model.NewValidationError(fields)
	}
	return in, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// conferenceSummaryResponse は一覧の要素。
type conferenceSummaryResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Acronym         string `json:"acronym"`
	Description     string `json:"description"`
	LocationCountry string `json:"locationCountry"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

type conferenceListResponse struct {
	Conferences []conferenceSummaryResponse `json:"conferences"`
}

// ownerResponse はメインチェアの連絡先。管理者にのみ返す。
type ownerResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// conferenceDetailResponse は単一取得のレスポンス。
// ownerId、owner、isPublicは管理者にのみ含まれる。
type conferenceDetailResponse struct {
	ID                  string              `json:"id"`
	Status              string              `json:"status"`
	Title               string              `json:"title"`
	Acronym             string              `json:"acronym"`
	Description         string              `json:"description"`
	LocationVenue       string              `json:"locationVenue"`
	LocationCity        string              `json:"locationCity"`
	LocationCountry     string              `json:"locationCountry"`
	CallForPapers       string              `json:"callForPapers"`
	WebsiteURL          string              `json:"websiteUrl,omitempty"`
	StartDate           string              `json:"startDate"`
	EndDate             string              `json:"endDate"`
	AbstractDeadline    string              `json:"abstractDeadline"`
	SubmissionDeadline  string              `json:"submissionDeadline"`
	CameraReadyDeadline string              `json:"cameraReadyDeadline"`
	ResearchAreas       map[string][]string `json:"researchAreas"`
	OwnerID             string              `json:"ownerId,omitempty"`
	Owner               *ownerResponse      `json:"owner,omitempty"`
	IsPublic            *bool               `json:"isPublic,omitempty"`
}

// createdResponse は登録結果。
type createdResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

func toSummaryResponses(list []conference.Summary) conferenceListResponse {
	out := make([]conferenceSummaryResponse, len(list))
	for i, s := range list {
		out[i] = conferenceSummaryResponse{
			ID:              s.ID,
			Title:           s.Title,
			Acronym:         s.Acronym,
			Description:     s.Description,
			LocationCountry: s.LocationCountry,
			StartDate:       formatDate(s.StartDate),
			EndDate:         formatDate(s.EndDate),
		}
	}
	return conferenceListResponse{Conferences: out}
}

func toDetailResponse(d *conference.Detail) conferenceDetailResponse {
	areas := map[string][]string(d.ResearchAreas)
	if areas == nil {
		areas = map[string][]string{}
	}
	resp := conferenceDetailResponse{
		ID:                  d.ID,
		Status:              string(d.Status),
		Title:               d.Title,
		Acronym:             d.Acronym,
		Description:         d.Description,
		LocationVenue:       d.LocationVenue,
		LocationCity:        d.LocationCity,
		LocationCountry:     d.LocationCountry,
		CallForPapers:       d.CallForPapers,
		WebsiteURL:          d.WebsiteURL,
		StartDate:           formatDate(d.StartDate),
		EndDate:             formatDate(d.EndDate),
		AbstractDeadline:    formatDate(d.AbstractDeadline),
		SubmissionDeadline:  formatDate(d.SubmissionDeadline),
		CameraReadyDeadline: formatDate(d.CameraReadyDeadline),
		ResearchAreas:       areas,
	}
	if d.Admin != nil {
		isPublic := d.Admin.IsPublic
		resp.OwnerID = d.Admin.OwnerID
		resp.IsPublic = &isPublic
		if o := d.Admin.Owner; o != nil {
			resp.Owner = &ownerResponse{
				ID:        o.ID,
				FirstName: o.FirstName,
				LastName:  o.LastName,
				Email:     o.Email,
			}
		}
	}
	return resp
}
