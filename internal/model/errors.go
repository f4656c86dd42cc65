// Package model はドメインモデルを定義する。
package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind はエラーの分類を表す。
type Kind string

const (
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindValidation      Kind = "VALIDATION"
	KindConflict        Kind = "CONFLICT"
	KindUnavailable     Kind = "UNAVAILABLE"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindInternal        Kind = "INTERNAL"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code      string            // エラーコード
	Kind      Kind              // エラー分類
	Message   string            // エラーメッセージ
	Category  string            // カテゴリ: auth, validation, conference, system
	Action    string            // ユーザー向け対処方法
	Retryable bool              // 呼び出し元が再試行してよいか
	Fields    map[string]string // フィールドごとの検証エラー（VALIDATIONのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotVerified        = "ACCOUNT_NOT_VERIFIED"
	ErrCodeConferenceNotFound = "CONFERENCE_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Kind:     KindUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Kind:     KindForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "権限を持つアカウントでログインしてください。",
	}
}

// NewNotVerifiedError はアカウント未確認エラーを生成する。
func NewNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotVerified,
		Kind:     KindForbidden,
		Message:  "アカウントが確認されていません。",
		Category: "auth",
		Action:   "メールアドレスの確認を完了してから再度お試しください。",
	}
}

// NewConferenceNotFoundError はカンファレンス未検出エラーを生成する。
// 存在しない場合と閲覧権限がない場合を区別しない。
func NewConferenceNotFoundError(conferenceID string) *APIError {
	return &APIError{
		Code:     ErrCodeConferenceNotFound,
		Kind:     KindNotFound,
		Message:  fmt.Sprintf("指定されたカンファレンスが見つかりません: %s", conferenceID),
		Category: "conference",
		Action:   "カンファレンスIDを確認してください。",
	}
}

// NewValidationError はフィールドごとの検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Kind:     KindValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目のエラーを確認して修正してください。",
		Fields:   fields,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Kind:     KindValidation,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidTransitionError は現在の状態から許可されない遷移を試みた場合のエラーを生成する。
func NewInvalidTransitionError(conferenceID, transition string) *APIError {
	return &APIError{
		Code:      ErrCodeInvalidTransition,
		Kind:      KindConflict,
		Message:   fmt.Sprintf("カンファレンス %s は現在の状態では %s できません。", conferenceID, transition),
		Category:  "conference",
		Action:    "最新の状態を再取得してから再度お試しください。",
		Retryable: true,
	}
}

// NewUnavailableError は外部ストアや通知先がタイムアウトした場合のエラーを生成する。
func NewUnavailableError(what string) *APIError {
	return &APIError{
		Code:      ErrCodeUnavailable,
		Kind:      KindUnavailable,
		Message:   fmt.Sprintf("%sが一時的に利用できません。", what),
		Category:  "system",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:      ErrCodeRateLimited,
		Kind:      KindRateLimited,
		Message:   "リクエスト数が上限を超えました。",
		Category:  "system",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録すること。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Kind:     KindInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// ErrorKind は任意のエラーを分類する。
// APIErrorでないエラーは、タイムアウトならUNAVAILABLE、それ以外はINTERNALとする。
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}

// IsRetryable は呼び出し元が再試行してよいエラーかを返す。
// CONFLICT、UNAVAILABLE、レート制限超過のみが再試行可能。
func IsRetryable(err error) bool {
	switch ErrorKind(err) {
	case KindConflict, KindUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}
