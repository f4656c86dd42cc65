package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confman/internal/conference"
	"github.com/hitoshi/confman/internal/middleware"
	"github.com/hitoshi/confman/internal/model"
)

// ConferenceService はカンファレンスハンドラーが必要とするサービスインターフェース。
// 認可はサービス側でも行うため、呼び出し元をそのまま渡す。
type ConferenceService interface {
	ListPublic(ctx context.Context, caller model.Principal) ([]conference.Summary, error)
	ListPending(ctx context.Context, caller model.Principal) ([]conference.Summary, error)
	Get(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error)
	Create(ctx context.Context, caller model.Principal, in model.CreateConferenceInput) (*conference.Created, error)
	Approve(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error)
	Delete(ctx context.Context, caller model.Principal, id string) error
}

// ConferenceHandler はカンファレンス関連のHTTPハンドラー。
type ConferenceHandler struct {
	service ConferenceService
}

// NewConferenceHandler はConferenceHandlerを生成する。
func NewConferenceHandler(service ConferenceService) *ConferenceHandler {
	return &ConferenceHandler{service: service}
}

// ListPublic は公開済みカンファレンスの一覧を返す。
// GET /api/conferences
func (h *ConferenceHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPublic(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponses(list))
}

// ListPending は審査待ちカンファレンスの一覧を返す。
// GET /api/admin/conferences/pending
func (h *ConferenceHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPending(r.Context(), middleware.PrincipalFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponses(list))
}

// Get はカンファレンスの詳細を返す。
// GET /api/conferences/{id}
func (h *ConferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

// Create はカンファレンスを審査待ちとして登録する。
// POST /api/conferences
func (h *ConferenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConferenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), middleware.PrincipalFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/conferences/"+created.ID)
	writeJSON(w, http.StatusCreated, createdResponse{
		ID:        created.ID,
		Status:    string(created.Status),
		CreatedAt: created.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Approve は審査待ちのカンファレンスを承認する。
// POST /api/admin/conferences/{id}/approve
func (h *ConferenceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Approve(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

// Delete はカンファレンスを論理削除する。
// DELETE /api/admin/conferences/{id}
func (h *ConferenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.PrincipalFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
