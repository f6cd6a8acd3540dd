package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient()
	require.NotNil(t, client)

	httpClient, ok := client.(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, httpClient.client.Timeout)

	slow, ok := NewHTTPClientWithTimeout(2 * time.Minute).(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, slow.client.Timeout)

	fallback, ok := NewHTTPClientWithTimeout(0).(*HTTPClient)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, fallback.client.Timeout)
}

func TestHTTPClient_DoHTTPRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		requestParam *RequestParam
		handler      http.HandlerFunc
		wantErr      bool
		wantErrMsg   string
	}{
		{
			name:         "成功的GET请求",
			requestParam: &RequestParam{Method: http.MethodGet},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				_, _ = w.Write([]byte(`{"message": "success"}`))
			},
		},
		{
			name: "POST请求带JSON body",
			requestParam: &RequestParam{
				Method: http.MethodPost,
				Body:   map[string]interface{}{"key": "value"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var data map[string]interface{}
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				require.NoError(t, json.Unmarshal(body, &data))
				assert.Equal(t, "value", data["key"])
				_, _ = w.Write([]byte(`{"received": true}`))
			},
		},
		{
			name: "POST请求带io.Reader body和自定义header",
			requestParam: &RequestParam{
				Method: http.MethodPost,
				Body:   strings.NewReader(`{"reader": "body"}`),
				Header: map[string]string{"Content-Type": "application/json"},
			},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				assert.Equal(t, `{"reader": "body"}`, string(body))
			},
		},
		{
			name:         "服务器返回错误状态码",
			requestParam: &RequestParam{Method: http.MethodGet},
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error": "server error"}`))
			},
			wantErr:    true,
			wantErrMsg: "HTTP request failed with status 500",
		},
		{
			name:         "请求超时",
			requestParam: &RequestParam{Method: http.MethodGet, Timeout: 100 * time.Millisecond},
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			wantErr:    true,
			wantErrMsg: "context deadline exceeded",
		},
		{
			name:       "请求参数为nil",
			wantErr:    true,
			wantErrMsg: "request param is nil",
		},
		{
			name:         "无效的URL",
			requestParam: &RequestParam{Method: http.MethodGet, RequestURI: "://invalid-url"},
			wantErr:      true,
			wantErrMsg:   "missing protocol scheme",
		},
		{
			name:         "JSON序列化失败",
			requestParam: &RequestParam{Method: http.MethodPost, Body: make(chan int)},
			wantErr:      true,
			wantErrMsg:   "json: unsupported type: chan int",
		},
		{
			name:         "响应不是JSON",
			requestParam: &RequestParam{Method: http.MethodGet, Response: &map[string]interface{}{}},
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
			wantErr:    true,
			wantErrMsg: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {}
			}
			server := httptest.NewServer(handler)
			defer server.Close()

			if tt.requestParam != nil && tt.requestParam.RequestURI == "" {
				tt.requestParam.RequestURI = server.URL
			}

			err := NewHTTPClient().DoHTTPRequest(context.Background(), tt.requestParam)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestHTTPClient_DoHTTPRequest_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := NewHTTPClient().DoHTTPRequest(ctx, &RequestParam{
		Method:     http.MethodGet,
		RequestURI: server.URL,
		Response:   &map[string]interface{}{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestHTTPClient_DoHTTPRequest_RawResponse(t *testing.T) {
	t.Parallel()

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var got []byte
	param := &RequestParam{
		Method:     http.MethodGet,
		RequestURI: server.URL,
		Response:   &got,
	}
	require.NoError(t, NewHTTPClient().DoHTTPRequest(context.Background(), param))
	assert.Equal(t, payload, got)
	assert.Equal(t, "image/png", http.Header(param.ResponseHeader).Get("Content-Type"))
}

func TestHTTPClient_DoHTTPRequest_Query(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b.png", r.URL.Query().Get("filename"))
		assert.Equal(t, "output", r.URL.Query().Get("type"))
		assert.Equal(t, "1", r.URL.Query().Get("keep"))
	}))
	defer server.Close()

	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
		Method:     http.MethodGet,
		RequestURI: server.URL + "/view?keep=1",
		Query:      map[string]string{"filename": "a b.png", "type": "output"},
	})
	assert.NoError(t, err)
}

func TestHTTPClient_DoHTTPRequest_BytesBody(t *testing.T) {
	t.Parallel()

	testData := []byte("test bytes data")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, testData, body)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
		Method:     http.MethodPost,
		RequestURI: server.URL,
		Body:       strings.NewReader(string(testData)),
	})
	assert.NoError(t, err)
}

func TestHTTPClient_DoHTTPRequest_ErrorStatusCodes(t *testing.T) {
	t.Parallel()

	for _, statusCode := range []int{400, 401, 404, 500, 502, 503} {
		t.Run(http.StatusText(statusCode), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(statusCode)
				_, _ = w.Write([]byte(strings.Repeat("x", 600) + "Error message"))
			}))
			defer server.Close()

			err := NewHTTPClient().DoHTTPRequest(context.Background(), &RequestParam{
				Method:     http.MethodGet,
				RequestURI: server.URL,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "HTTP request failed with status")
			// 超长响应体被截断
			assert.NotContains(t, err.Error(), "Error message")
		})
	}
}
