package conference

import (
	"testing"
	"time"

	"github.com/hitoshi/confman/internal/model"
)

func TestNewPending(t *testing.T) {
	in := validInput()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	c := NewPending(in, "user-a", "conf-1", now)

	if c.ID != "conf-1" || c.OwnerID != "user-a" {
		t.Errorf("id/owner = %q/%q", c.ID, c.OwnerID)
	}
	if c.Status != model.ConferenceStatusPending {
		t.Errorf("status = %s, want PENDING", c.Status)
	}
	if c.IsDeleted {
		t.Error("new record must not be deleted")
	}
	if !c.IsPublic {
		t.Error("isPublic should follow the input")
	}
	if !c.CreatedAt.Equal(now) || !c.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v", c.CreatedAt, c.UpdatedAt)
	}

	// 入力の研究分野を書き換えてもレコードに影響しない
	in.ResearchAreas["Systems"][0] = "changed"
	if c.ResearchAreas["Systems"][0] != "OS" {
		t.Errorf("research areas aliased to input: %v", c.ResearchAreas)
	}
}

func TestNewPending_PrivateIntent(t *testing.T) {
	in := validInput()
	in.IsPublic = false
	c := NewPending(in, "user-a", "conf-1", time.Now())
	if c.IsPublic {
		t.Error("isPublic should be false")
	}
}

func TestTransitionPreconditions(t *testing.T) {
	tests := []struct {
		name           string
		conf           *model.Conference
		wantApprove    bool
		wantSoftDelete bool
	}{
		{"nil", nil, false, false},
		{"pending", &model.Conference{Status: model.ConferenceStatusPending}, true, true},
		{"approved", &model.Conference{Status: model.ConferenceStatusApproved}, false, true},
		{"pending削除済み", &model.Conference{Status: model.ConferenceStatusPending, IsDeleted: true}, false, false},
		{"approved削除済み", &model.Conference{Status: model.ConferenceStatusApproved, IsDeleted: true}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanApprove(tt.conf); got != tt.wantApprove {
				t.Errorf("CanApprove = %v, want %v", got, tt.wantApprove)
			}
			if got := CanSoftDelete(tt.conf); got != tt.wantSoftDelete {
				t.Errorf("CanSoftDelete = %v, want %v", got, tt.wantSoftDelete)
			}
		})
	}
}
