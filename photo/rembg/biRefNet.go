package rembg

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	nhttp "github.com/chaos-io/prophoto/util/http"
)

const (
	uploadPath  = "/api/upload/image"
	promptPath  = "/api/prompt"
	historyPath = "/api/history/"
	viewPath    = "/api/view"
	statsPath   = "/api/system_stats"

	loadImageNode = "LoadImage"
)

//go:embed workflow.json
var defaultWorkflow []byte

// BiRefNetRemBG 通过 ComfyUI 的 HTTP API 运行 BiRefNet 抠图工作流
type BiRefNetRemBG struct {
	baseURL      string
	workflow     []byte
	pollInterval time.Duration
	clientID     string
	cli          nhttp.IClient
}

func NewBiRefNetRemBG(cli nhttp.IClient, baseURL string, workflow []byte, pollInterval time.Duration) (*BiRefNetRemBG, error) {
	// 提前校验工作流，避免每次请求才发现问题
	if _, err := bindWorkflow(workflow, "check.png"); err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &BiRefNetRemBG{
		baseURL:      strings.TrimRight(baseURL, "/"),
		workflow:     workflow,
		pollInterval: pollInterval,
		clientID:     ksuid.New().String(),
		cli:          cli,
	}, nil
}

func (b *BiRefNetRemBG) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	uploaded, err := b.uploadImage(ctx, ksuid.New().String()+".png", data)
	if err != nil {
		return nil, err
	}

	promptID, err := b.prompt(ctx, uploaded.path())
	if err != nil {
		return nil, err
	}

	out, err := b.waitOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	result, err := b.view(ctx, out)
	if err != nil {
		return nil, err
	}
	return decodePNG(result)
}

func (b *BiRefNetRemBG) Ping(ctx context.Context) error {
	return b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.baseURL + statsPath,
		Method:     http.MethodGet,
	})
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// path LoadImage 节点接受 "subfolder/name"
func (u *uploadImageResp) path() string {
	if u.Subfolder == "" {
		return u.Name
	}
	return u.Subfolder + "/" + u.Name
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (b *BiRefNetRemBG) uploadImage(ctx context.Context, name string, data []byte) (*uploadImageResp, error) {
	body, contentType, err := multipartBody("image", name, data, map[string]string{
		"type":      "input",
		"overwrite": "true",
	})
	if err != nil {
		return nil, err
	}

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + uploadPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": contentType},
		Body:       body,
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return nil, errors.New("upload image: empty file name in response")
	}

	zerolog.Ctx(ctx).Debug().Interface("response", resp).Msg("comfyui image uploaded")
	return resp, nil
}

type promptReq struct {
	Prompt   map[string]any `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (b *BiRefNetRemBG) prompt(ctx context.Context, imageName string) (string, error) {
	wk, err := bindWorkflow(b.workflow, imageName)
	if err != nil {
		return "", err
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + promptPath,
		Method:     http.MethodPost,
		Body:       &promptReq{Prompt: wk, ClientID: b.clientID},
		Response:   resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}

	zerolog.Ctx(ctx).Debug().Str("prompt_id", resp.PromptID).Int("number", resp.Number).Msg("comfyui prompt queued")
	return resp.PromptID, nil
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

// waitOutput 轮询 history 直到工作流产出图片
func (b *BiRefNetRemBG) waitOutput(ctx context.Context, promptID string) (*outputImage, error) {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		out, done, err := b.history(ctx, promptID)
		if err != nil || done {
			return out, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *BiRefNetRemBG) history(ctx context.Context, promptID string) (*outputImage, bool, error) {
	resp := map[string]historyEntry{}
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + historyPath + promptID,
		Method:     http.MethodGet,
		Response:   &resp,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, true, fmt.Errorf("get history: %w", err)
	}

	entry, ok := resp[promptID]
	if !ok {
		// 还在队列中
		return nil, false, nil
	}
	if entry.Status.StatusStr == "error" {
		return nil, true, fmt.Errorf("%w: prompt %s failed", ErrNoOutput, promptID)
	}

	// 节点 id 排序，保证多个输出节点时结果稳定
	nodes := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	for _, id := range nodes {
		if images := entry.Outputs[id].Images; len(images) > 0 {
			return &images[0], true, nil
		}
	}

	if entry.Status.Completed {
		return nil, true, fmt.Errorf("%w: prompt %s", ErrNoOutput, promptID)
	}
	return nil, false, nil
}

func (b *BiRefNetRemBG) view(ctx context.Context, out *outputImage) ([]byte, error) {
	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: b.baseURL + viewPath,
		Method:     http.MethodGet,
		Query: map[string]string{
			"filename":  out.Filename,
			"subfolder": out.Subfolder,
			"type":      out.Type,
		},
		Response: &data,
	}
	if err := b.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("view output: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoOutput
	}
	return data, nil
}

// bindWorkflow 解析 API 格式的工作流，并把 LoadImage 节点指向上传的图片
func bindWorkflow(workflow []byte, imageName string) (map[string]any, error) {
	wk := map[string]any{}
	if err := json.Unmarshal(workflow, &wk); err != nil {
		return nil, fmt.Errorf("unmarshal workflow data: %w", err)
	}

	bound := 0
	for _, raw := range wk {
		node, ok := raw.(map[string]any)
		if !ok || node["class_type"] != loadImageNode {
			continue
		}
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			inputs = map[string]any{}
			node["inputs"] = inputs
		}
		inputs["image"] = imageName
		bound++
	}

	if bound != 1 {
		return nil, fmt.Errorf("workflow must contain exactly one %s node, found %d", loadImageNode, bound)
	}
	return wk, nil
}
