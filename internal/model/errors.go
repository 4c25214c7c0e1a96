// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, subscription, content, system
	Action   string // ユーザー向け対処方法

	// Cause は内部エラーの原因。レスポンスには含めず、ログと開発モードの詳細表示にのみ使う。
	Cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// エラーカテゴリ
const (
	CategoryValidation   = "validation"
	CategorySubscription = "subscription"
	CategoryContent      = "content"
	CategorySystem       = "system"
)

// 定義済みエラーコード
const (
	ErrCodeEmailRequired     = "EMAIL_REQUIRED"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeAlreadySubscribed = "ALREADY_SUBSCRIBED"
	ErrCodeInvalidPagination = "INVALID_PAGINATION"
	ErrCodePostNotFound      = "POST_NOT_FOUND"
	ErrCodeToolNotFound      = "TOOL_NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// NewEmailRequiredError はメールアドレス未入力エラーを生成する。
func NewEmailRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailRequired,
		Message:  "email required",
		Category: CategoryValidation,
		Action:   "Enter your email address.",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "invalid email format",
		Category: CategoryValidation,
		Action:   "Please provide a valid email address.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "invalid request body",
		Category: CategoryValidation,
		Action:   "Send a JSON body of the form {\"data\": {\"email\": \"...\"}}.",
	}
}

// NewAlreadySubscribedError は購読済みメールアドレスの重複登録エラーを生成する。
func NewAlreadySubscribedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySubscribed,
		Message:  "already subscribed",
		Category: CategorySubscription,
		Action:   "This email is already subscribed. No further action is needed.",
	}
}

// NewInvalidPaginationError はページネーションパラメータの不正エラーを生成する。
func NewInvalidPaginationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPagination,
		Message:  fmt.Sprintf("invalid pagination: %s", reason),
		Category: CategoryValidation,
		Action:   "Use a positive page and a pageSize between 1 and 100.",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("post not found: %s", slug),
		Category: CategoryContent,
		Action:   "Check the post slug.",
	}
}

// NewToolNotFoundError はツール未検出エラーを生成する。
func NewToolNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeToolNotFound,
		Message:  fmt.Sprintf("tool not found: %s", id),
		Category: CategoryContent,
		Action:   "Check the tool ID.",
	}
}

// NewInternalError はストレージ障害などの内部エラーを生成する。
// causeはログ出力用に保持し、呼び出し元には汎用メッセージのみを返す。
func NewInternalError(message string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: CategorySystem,
		Action:   "Please try again later.",
		Cause:    cause,
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: CategorySystem,
		Action:   "Please wait and retry after the time given in Retry-After.",
	}
}

// IsValidationError は入力不正に起因するエラーかどうかを判定する。
func IsValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == CategoryValidation
}

// IsDuplicateError は購読済みによるエラーかどうかを判定する。
func IsDuplicateError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeAlreadySubscribed
}

// IsInternalError は内部エラーかどうかを判定する。
func IsInternalError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeInternal
}

// IsNotFoundError はコンテンツ未検出エラーかどうかを判定する。
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.Code == ErrCodePostNotFound || apiErr.Code == ErrCodeToolNotFound)
}
