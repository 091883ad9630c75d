package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误码 (取值即 HTTP status)
const (
	OK                    = 200
	InvalidParam          = 400
	SymbolUnsupported     = 4001
	NotFound              = 404
	RateLimited           = 429
	ServerCommonError     = 500
	AllProvidersExhausted = 502
	Unavailable           = 503
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	err  error
}

func (e *CodeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s: %v", e.Code, e.Msg, e.err)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.err }

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap keeps err reachable through errors.Is/As while tagging it with a code.
func Wrap(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Msg: msg, err: err}
}

// CodeOf returns the code carried by err, ServerCommonError otherwise.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

// Message is the client-safe message for err.
func Message(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) && ce.Msg != "" {
		return ce.Msg
	}
	return MapErrMsg(ServerCommonError)
}

// HTTPStatus maps an error onto the status code returned to HTTP callers.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case InvalidParam, SymbolUnsupported:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case AllProvidersExhausted:
		return http.StatusBadGateway
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "internal error"
	case InvalidParam:
		return "invalid parameter"
	case SymbolUnsupported:
		return "unsupported symbol"
	case NotFound:
		return "API endpoint not found"
	case RateLimited:
		return "Too many requests from this IP, please try again later."
	case AllProvidersExhausted:
		return "all price providers failed"
	case Unavailable:
		return "service unavailable"
	default:
		return "unknown error"
	}
}
