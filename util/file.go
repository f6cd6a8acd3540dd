package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

var ErrUnsupportedImage = errors.New("unsupported image type, expected jpg, jpeg or png")

// 允许上传的扩展名及对应的真实类型
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// DownloadImage 下载图片，最多读取 maxBytes 字节
func DownloadImage(ctx context.Context, url string, maxBytes int64) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status code %d", url, resp.StatusCode)
	}

	imgData, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(imgData)) > maxBytes {
		return nil, fmt.Errorf("download %s: image larger than %d bytes", url, maxBytes)
	}

	return DecodeImage(imgData, "")
}

// OpenImage 打开本地图片
func OpenImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data, path)
}

// DecodeImage 校验图片类型后解码，并按 EXIF 方向旋转
// name 非空时还要求扩展名匹配
func DecodeImage(data []byte, name string) (image.Image, error) {
	if err := CheckImageType(data, name); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// CheckImageType 扩展名和内容嗅探都必须是 jpeg/png
func CheckImageType(data []byte, name string) error {
	detected := mimetype.Detect(data)

	if name == "" {
		if detected.Is("image/jpeg") || detected.Is("image/png") {
			return nil
		}
		return fmt.Errorf("%w: got %s", ErrUnsupportedImage, detected.String())
	}

	want, ok := allowedTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, filepath.Base(name))
	}
	if !detected.Is(want) {
		return fmt.Errorf("%w: %s looks like %s", ErrUnsupportedImage, filepath.Base(name), detected.String())
	}
	return nil
}
