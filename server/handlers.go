package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chaos-io/prophoto/photo"
	"github.com/chaos-io/prophoto/store"
	"github.com/chaos-io/prophoto/util"
)

// processForm 除 image 以外的表单字段，滑块没传时用默认值
type processForm struct {
	Background  string   `form:"background" binding:"omitempty,max=64"`
	CustomColor string   `form:"custom_color" binding:"omitempty,hexcolor"`
	Enhance     *bool    `form:"enhance"`
	Brightness  *float64 `form:"brightness" binding:"omitempty,gte=0.7,lte=1.5"`
	Contrast    *float64 `form:"contrast" binding:"omitempty,gte=0.7,lte=1.5"`
	Sharpness   *float64 `form:"sharpness" binding:"omitempty,gte=0.7,lte=1.5"`
	Saturation  *float64 `form:"saturation" binding:"omitempty,gte=0.5,lte=1.5"`
	Framing     string   `form:"framing" binding:"omitempty,oneof=none subject face smart"`
}

func (f processForm) options() photo.Options {
	opts := photo.DefaultOptions()
	if f.Background != "" {
		opts.Background = f.Background
	}
	opts.CustomColor = f.CustomColor
	if f.Framing != "" {
		opts.Framing = photo.Framing(f.Framing)
	}

	if f.Enhance != nil && !*f.Enhance {
		opts.Enhancement = photo.Disabled()
		return opts
	}
	for _, p := range []struct {
		src *float64
		dst *float64
	}{
		{f.Brightness, &opts.Enhancement.Brightness},
		{f.Contrast, &opts.Enhancement.Contrast},
		{f.Sharpness, &opts.Enhancement.Sharpness},
		{f.Saturation, &opts.Enhancement.Saturation},
	} {
		if p.src != nil {
			*p.dst = *p.src
		}
	}
	return opts
}

type processResponse struct {
	ID                string `json:"id"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	BackgroundRemoved bool   `json:"background_removed"`
	ElapsedMS         int64  `json:"elapsed_ms"`
}

type resultResponse struct {
	processResponse
	Options   photo.Options `json:"options"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Presets":     photo.Presets,
		"Brightness":  photo.BrightnessRange,
		"Contrast":    photo.ContrastRange,
		"Sharpness":   photo.SharpnessRange,
		"Saturation":  photo.SaturationRange,
		"MaxUploadMB": s.cfg.MaxUploadMB,
		"FaceFraming": s.faceFraming,
		"CustomColor": photo.DefaultCustomColor,
	})
}

func (s *Server) presets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"presets": photo.Presets,
		"enhancement": gin.H{
			"brightness": photo.BrightnessRange,
			"contrast":   photo.ContrastRange,
			"sharpness":  photo.SharpnessRange,
			"saturation": photo.SaturationRange,
		},
		"framing":       []photo.Framing{photo.FramingNone, photo.FramingSubject, photo.FramingFace, photo.FramingSmart},
		"defaults":      photo.DefaultOptions(),
		"max_upload_mb": s.cfg.MaxUploadMB,
	})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"segmentation": s.health.Status(),
	})
}

func (s *Server) process(c *gin.Context) {
	ctx := c.Request.Context()
	logger := zerolog.Ctx(ctx)
	maxBytes := s.cfg.MaxUploadBytes()

	// multipart 头部和其他字段留 1MB 余量
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
			return
		}
		abortWithError(c, http.StatusBadRequest, "missing image file (form field 'image')")
		return
	}
	if file.Size > maxBytes {
		abortWithError(c, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
		return
	}

	var form processForm
	if err := c.ShouldBind(&form); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid parameters: %v", err))
		return
	}
	opts := form.options()
	if err := opts.Validate(); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	f, err := file.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "failed to read image")
		return
	}

	img, err := util.DecodeImage(data, file.Filename)
	if err != nil {
		if errors.Is(err, util.ErrUnsupportedImage) {
			abortWithError(c, http.StatusBadRequest, "Please upload a JPG, JPEG or PNG image")
			return
		}
		abortWithError(c, http.StatusBadRequest, "could not read the image, the file may be corrupted")
		return
	}

	res, err := s.proc.Process(ctx, img, opts)
	if err != nil {
		logger.Warn().Err(err).Str("file", file.Filename).Msg("processing failed")
		status, msg := processError(err)
		abortWithError(c, status, msg)
		return
	}

	id, err := s.results.Put(ctx, &store.Record{
		// 原图只用于对比预览，缩到和结果同一量级
		Original:          imaging.Fit(img, s.maxSide, s.maxSide, imaging.Lanczos),
		Processed:         res.Image,
		Options:           opts,
		BackgroundRemoved: res.BackgroundRemoved,
		Elapsed:           res.Elapsed,
	})
	if err != nil {
		logger.Error().Err(err).Msg("store result")
		abortWithError(c, http.StatusInternalServerError, "could not keep the result, please try again")
		return
	}

	c.JSON(http.StatusOK, processResponse{
		ID:                id,
		Width:             res.Image.Bounds().Dx(),
		Height:            res.Image.Bounds().Dy(),
		BackgroundRemoved: res.BackgroundRemoved,
		ElapsedMS:         res.Elapsed.Milliseconds(),
	})
}

func processError(err error) (int, string) {
	switch {
	case errors.Is(err, photo.ErrSegmentation):
		return http.StatusBadGateway, fmt.Sprintf("Processing failed: %v. Try another image or check that the photo shows a clear subject.", err)
	case errors.Is(err, photo.ErrNoForeground):
		return http.StatusBadRequest, "No subject found in the image. Try another image."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Processing was interrupted, please try again."
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Processing failed: %v", err)
	}
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("image too large (max %dMB)", s.cfg.MaxUploadMB)
}

func (s *Server) record(c *gin.Context) (*store.Record, bool) {
	rec, err := s.results.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, "result not found or expired, please process the image again")
		return nil, false
	}
	return rec, true
}

func (s *Server) result(c *gin.Context) {
	rec, ok := s.record(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, resultResponse{
		processResponse: processResponse{
			ID:                rec.ID,
			Width:             rec.Processed.Bounds().Dx(),
			Height:            rec.Processed.Bounds().Dy(),
			BackgroundRemoved: rec.BackgroundRemoved,
			ElapsedMS:         rec.Elapsed.Milliseconds(),
		},
		Options:   rec.Options,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.CreatedAt.Add(s.ttl),
	})
}

type previewQuery struct {
	Width int `form:"w" binding:"omitempty,min=16,max=4096"`
}

func (s *Server) preview(pick func(rec *store.Record) *image.NRGBA) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q previewQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid preview width: %v", err))
			return
		}
		rec, ok := s.record(c)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := photo.Encode(&buf, thumbnail(pick(rec), q.Width), photo.FormatPNG, 0); err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("encode preview")
			abortWithError(c, http.StatusInternalServerError, "could not render preview")
			return
		}
		c.Header("Cache-Control", "private, max-age=300")
		c.Data(http.StatusOK, photo.FormatPNG.MIME(), buf.Bytes())
	}
}

func (s *Server) download(c *gin.Context) {
	format, err := photo.ParseFormat(c.Query("format"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "format must be jpeg or png")
		return
	}
	rec, ok := s.record(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := photo.Encode(&buf, rec.Processed, format, s.jpegQuality); err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("encode download")
		abortWithError(c, http.StatusInternalServerError, "could not encode the image")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
	c.Data(http.StatusOK, format.MIME(), buf.Bytes())
}
