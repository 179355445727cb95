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
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeWrongPassword      = "WRONG_PASSWORD"
	ErrCodeNothingToUpdate    = "NOTHING_TO_UPDATE"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeStorage            = "STORAGE_ERROR"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeTooManyRequests    = "RATE_LIMIT_EXCEEDED"
)

// ErrStorage は永続化層の障害を表すセンチネルエラー。
// errors.Is(err, ErrStorage) で判定できる。
var ErrStorage = errors.New("storage fault")

// StorageError は永続化層の障害を表す。
// ビジネスルール違反（重複など）とは区別して扱う。
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError は操作名と原因エラーからStorageErrorを生成する。
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is はErrStorageとの比較でtrueを返す。
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewDuplicateUserError はユーザー名またはメールアドレスの重複エラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "このユーザー名またはメールアドレスは既に使用されています。",
		Category: "validation",
		Action:   "別のユーザー名またはメールアドレスを指定してください。",
	}
}

// NewInvalidCredentialsError は認証情報が一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewInvalidInputError は入力値が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewWrongPasswordError は現在のパスワードが一致しない場合のエラーを生成する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongPassword,
		Message:  "現在のパスワードが正しくありません。",
		Category: "auth",
		Action:   "現在のパスワードを確認してください。",
	}
}

// NewNothingToUpdateError は更新対象のフィールドがない場合のエラーを生成する。
func NewNothingToUpdateError() *APIError {
	return &APIError{
		Code:     ErrCodeNothingToUpdate,
		Message:  "更新するデータがありません。",
		Category: "validation",
		Action:   "username、bio、avatar_pathのいずれかを指定してください。",
	}
}

// NewInvalidPayloadError はWebSocketで受信したメッセージが不正な場合のエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("メッセージの形式が不正です: %s", reason),
		Category: "chat",
		Action:   "author_id、author_name、bodyを含むJSONを送信してください。",
	}
}

// NewRateLimitedError はメッセージ送信頻度が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "メッセージの送信頻度が上限を超えました。",
		Category: "chat",
		Action:   "しばらく待ってから再度送信してください。",
	}
}

// NewStorageFailedError はメッセージの保存に失敗した場合のエラーを生成する。
func NewStorageFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStorage,
		Message:  "メッセージを保存できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度送信してください。",
	}
}

// NewForbiddenError は操作が許可されていない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作は許可されていません。",
		Category: "auth",
		Action:   "ログイン中のユーザーを確認してください。",
	}
}

// NewInternalError は原因を伏せた内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewTooManyRequestsError はHTTPリクエストがレート制限を超えた場合のエラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Code:     ErrCodeTooManyRequests,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}
