package services

import (
	"errors"
	"fmt"
)

// サービス層が返すエラーの分類です。ハンドラーはerrors.IsでHTTPステータスに変換します。
var (
	ErrValidation             = errors.New("validation error")        // 400
	ErrAuthenticationRequired = errors.New("authentication required") // 401
	ErrPermissionDenied       = errors.New("permission denied")       // 403
	ErrNotFound               = errors.New("not found")               // 404

	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrAuthenticationRequired)
)

// ValidationError は入力値の誤りです。どのフィールドが原因かを持ちます。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func validationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
