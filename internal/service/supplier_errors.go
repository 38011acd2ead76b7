package service

import (
	"errors"
	"fmt"
)

// ==================== 错误分类 ====================

// 供应商调用失败类型，均只影响单个供应商的单次调用
var (
	ErrConfiguration     = errors.New("supplier configuration error")
	ErrAuthentication    = errors.New("supplier authentication error")
	ErrHTTP              = errors.New("supplier http error")
	ErrMalformedResponse = errors.New("supplier malformed response")
	ErrSupplierAPI       = errors.New("supplier api error")
)

// ErrEmptyArticle 调用方传入空 article (使用错误，不是环境错误)
var ErrEmptyArticle = errors.New("article must not be empty")

// 写入调用日志的错误类型
const (
	ErrorKindConfiguration  = "configuration"
	ErrorKindAuthentication = "authentication"
	ErrorKindHTTP           = "http"
	ErrorKindMalformed      = "malformed_response"
	ErrorKindSupplierAPI    = "supplier_api"
)

// SupplierError 单次供应商调用的失败结果
type SupplierError struct {
	Kind       error // 上面的哨兵错误之一
	SupplierID int64
	Method     string
	StatusCode int    // HttpError / AuthenticationError
	Code       string // SupplierApiError 的 errorCode
	Message    string
	Err        error // 底层错误 (网络、JSON 解析)
}

func (e *SupplierError) Error() string {
	msg := fmt.Sprintf("supplier %d %s: %v", e.SupplierID, e.Method, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 同时暴露分类与底层错误，errors.Is(err, ErrHTTP) 可用
func (e *SupplierError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindName 调用日志中使用的错误类型名
func (e *SupplierError) KindName() string {
	switch e.Kind {
	case ErrConfiguration:
		return ErrorKindConfiguration
	case ErrAuthentication:
		return ErrorKindAuthentication
	case ErrHTTP:
		return ErrorKindHTTP
	case ErrMalformedResponse:
		return ErrorKindMalformed
	case ErrSupplierAPI:
		return ErrorKindSupplierAPI
	default:
		return "unknown"
	}
}

// ErrorKindOf 提取错误类型名，非 SupplierError 返回 "unknown"
func ErrorKindOf(err error) string {
	var se *SupplierError
	if errors.As(err, &se) {
		return se.KindName()
	}
	return "unknown"
}
