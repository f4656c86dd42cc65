package conference

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/confman/internal/model"
	"github.com/hitoshi/confman/internal/security"
)

const (
	maxTitleLength   = 200
	maxAcronymLength = 32
	maxTextLength    = 20000
)

// Validator はカンファレンス作成入力の検証と正規化を行う。
type Validator struct {
	sanitizer security.Sanitizer
	urls      security.URLGuard
}

// NewValidator はValidatorを生成する。
func NewValidator(sanitizer security.Sanitizer, urls security.URLGuard) *Validator {
	return &Validator{sanitizer: sanitizer, urls: urls}
}

// Normalize は入力の前後の空白を除去し、自由記述欄をサニタイズしたうえで検証する。
// 検証エラーはフィールド名をキーとしたVALIDATIONエラーにまとめて返す。
func (v *Validator) Normalize(in model.CreateConferenceInput) (model.CreateConferenceInput, error) {
	out := in
	out.Title = strings.TrimSpace(in.Title)
	out.Acronym = strings.TrimSpace(in.Acronym)
	out.LocationVenue = strings.TrimSpace(in.LocationVenue)
	out.LocationCity = strings.TrimSpace(in.LocationCity)
	out.LocationCountry = strings.TrimSpace(in.LocationCountry)
	out.WebsiteURL = strings.TrimSpace(in.WebsiteURL)
	out.Description = v.sanitizer.Sanitize(in.Description)
	out.CallForPapers = v.sanitizer.Sanitize(in.CallForPapers)

	fields := map[string]string{}

	required := []struct {
		name  string
		value string
	}{
		{"title", out.Title},
		{"acronym", out.Acronym},
		{"description", out.Description},
		{"locationVenue", out.LocationVenue},
		{"locationCity", out.LocationCity},
		{"locationCountry", out.LocationCountry},
		{"callForPapers", out.CallForPapers},
	}
	for _, r := range required {
		if r.value == "" {
			fields[r.name] = "必須項目です"
		}
	}

	if n := utf8.RuneCountInString(out.Title); n > maxTitleLength {
		fields["title"] = fmt.Sprintf("%d文字以内で入力してください", maxTitleLength)
	}
	if n := utf8.RuneCountInString(out.Acronym); n > maxAcronymLength {
		fields["acronym"] = fmt.Sprintf("%d文字以内で入力してください", maxAcronymLength)
	}
	if utf8.RuneCountInString(out.Description) > maxTextLength {
		fields["description"] = fmt.Sprintf("%d文字以内で入力してください", maxTextLength)
	}
	if utf8.RuneCountInString(out.CallForPapers) > maxTextLength {
		fields["callForPapers"] = fmt.Sprintf("%d文字以内で入力してください", maxTextLength)
	}

	if out.WebsiteURL != "" {
		if err := v.urls.ValidateURL(out.WebsiteURL); err != nil {
			fields["websiteUrl"] = "http(s)の公開URLを入力してください"
		}
	}

	dates := []struct {
		name  string
		value bool
	}{
		{"startDate", out.StartDate.IsZero()},
		{"endDate", out.EndDate.IsZero()},
		{"abstractDeadline", out.AbstractDeadline.IsZero()},
		{"submissionDeadline", out.SubmissionDeadline.IsZero()},
		{"cameraReadyDeadline", out.CameraReadyDeadline.IsZero()},
	}
	for _, d := range dates {
		if d.value {
			fields[d.name] = "日付を指定してください"
		}
	}
	if !out.StartDate.IsZero() && !out.EndDate.IsZero() && out.EndDate.Before(out.StartDate) {
		fields["endDate"] = "開始日以降の日付を指定してください"
	}

	if msg := validateResearchAreas(out.ResearchAreas); msg != "" {
		fields["researchAreas"] = msg
	}
	out.ResearchAreas = trimResearchAreas(out.ResearchAreas)

	if len(fields) > 0 {
		return model.CreateConferenceInput{}, model.NewValidationError(fields)
	}
	return out, nil
}

// validateResearchAreas は前後の空白を除いた主分野名が空でなく、互いに重複しないことを検証する。
func validateResearchAreas(areas model.ResearchAreas) string {
	seen := make(map[string]bool, len(areas))
	for _, primary := range slices.Sorted(maps.Keys(areas)) {
		key := strings.TrimSpace(primary)
		if key == "" {
			return "主分野名が空です"
		}
		if seen[key] {
			return fmt.Sprintf("主分野名 %s が重複しています", key)
		}
		seen[key] = true
		for _, s := range areas[primary] {
			if strings.TrimSpace(s) == "" {
				return fmt.Sprintf("%s の副分野名が空です", primary)
			}
		}
	}
	return ""
}

func trimResearchAreas(areas model.ResearchAreas) model.ResearchAreas {
	out := make(model.ResearchAreas, len(areas))
	for primary, secondaries := range areas {
		trimmed := make([]string, len(secondaries))
		for i, s := range secondaries {
			trimmed[i] = strings.TrimSpace(s)
		}
		out[strings.TrimSpace(primary)] = trimmed
	}
	return out
}
