package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次请求
//
// Body 支持 nil、[]byte、io.Reader，其他类型按 JSON 序列化。
// Response 为 *[]byte 时保存原始响应体，其他非 nil 值按 JSON 反序列化。
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Query      map[string]string
	Body       interface{}
	Response   interface{}

	// ResponseHeader 请求完成后填充
	ResponseHeader map[string][]string

	Timeout time.Duration
}
