// Package rembg 封装外部抠图模型：rembg HTTP 服务或运行 BiRefNet 工作流的 ComfyUI
package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"os"

	"github.com/chaos-io/prophoto/config"
	nhttp "github.com/chaos-io/prophoto/util/http"
)

// ErrNoOutput 模型执行结束但没有产出图片
var ErrNoOutput = errors.New("segmentation backend returned no image")

// Remover 返回前景图，alpha 通道即分割 mask
type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// Pinger 后端健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Passthrough 不调用模型，原样返回（上传的图片本身已经抠好时使用）
type Passthrough struct{}

func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (d *Passthrough) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}

func (d *Passthrough) Ping(context.Context) error {
	return nil
}

// New 按配置创建后端
func New(cfg config.Segmentation) (Remover, error) {
	cli := nhttp.NewHTTPClientWithTimeout(cfg.Timeout)

	switch cfg.Backend {
	case config.BackendRemBG:
		return NewServerRemBG(cli, cfg.URL, cfg.Model), nil
	case config.BackendComfyUI:
		workflow := defaultWorkflow
		if cfg.WorkflowFile != "" {
			data, err := os.ReadFile(cfg.WorkflowFile)
			if err != nil {
				return nil, fmt.Errorf("read workflow: %w", err)
			}
			workflow = data
		}
		return NewBiRefNetRemBG(cli, cfg.URL, workflow, cfg.PollInterval)
	case config.BackendNone:
		return NewPassthrough(), nil
	default:
		return nil, fmt.Errorf("unknown segmentation backend %q", cfg.Backend)
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return img, nil
}

// multipartBody 构造单文件 + 普通字段的 multipart 请求体
func multipartBody(field, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, "", fmt.Errorf("copy form file: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
