// Package apperror は呼び出し元へ返すエラーの種別（クライアント/サービス）を提供します。
package apperror

import (
	"errors"

	"go.uber.org/zap"
)

// Kind はエラーの分類です。
type Kind string

const (
	// KindClient は入力不正や存在しないリソース参照を表します。入力を直さない限り再試行しても成功しません。
	KindClient Kind = "client"
	// KindService は依存サービスや内部処理の失敗を表します。再試行で回復する可能性があります。
	KindService Kind = "service"
)

const (
	clientPrefix  = "Client error: "
	servicePrefix = "Service error: "
)

// Error は分類付きのエラーです。Message には種別ごとの接頭辞が付きます。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Client はクライアントエラーを生成し、生成時点でログに記録します。
func Client(message string, err error) *Error {
	return newError(KindClient, clientPrefix+message, err)
}

// Service はサービスエラーを生成し、生成時点でログに記録します。
func Service(message string, err error) *Error {
	return newError(KindService, servicePrefix+message, err)
}

func newError(kind Kind, message string, err error) *Error {
	fields := []zap.Field{zap.String("kind", string(kind))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	zap.L().Error(message, fields...)
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf は err の分類を返します。分類されていないエラーはサービスエラー扱いです。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindService
}

// IsClient は err がクライアントエラーかどうかを返します。
func IsClient(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindClient
}

// IsService は err がサービスエラーかどうかを返します。
func IsService(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindService
}
