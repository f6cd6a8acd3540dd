package rembg

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	nhttp "github.com/chaos-io/prophoto/util/http"
)

// ServerRemBG 调用 `rembg s` 启动的 HTTP 服务
type ServerRemBG struct {
	baseURL string
	model   string
	cli     nhttp.IClient
}

func NewServerRemBG(cli nhttp.IClient, baseURL, model string) *ServerRemBG {
	return &ServerRemBG{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		cli:     cli,
	}
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.png" \
	  -F "model=u2net" -o cutout.png
*/
func (s *ServerRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if s.model != "" {
		fields["model"] = s.model
	}
	body, contentType, err := multipartBody("file", "image.png", data, fields)
	if err != nil {
		return nil, err
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + "/api/remove",
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": contentType},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("rembg remove: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoOutput
	}

	zerolog.Ctx(ctx).Debug().Str("model", s.model).Int("bytes", len(out)).Msg("rembg removed background")
	return decodePNG(out)
}

func (s *ServerRemBG) Ping(ctx context.Context) error {
	return s.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: s.baseURL + "/",
		Method:     http.MethodGet,
	})
}
