// Package server 单页应用和 JSON API
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chaos-io/prophoto/config"
	"github.com/chaos-io/prophoto/photo"
	"github.com/chaos-io/prophoto/store"
)

const shutdownTimeout = 10 * time.Second

//go:embed templates/*.html
var templatesFS embed.FS

type Processor interface {
	Process(ctx context.Context, img image.Image, opts photo.Options) (*photo.Result, error)
}

type ResultStore interface {
	Put(ctx context.Context, rec *store.Record) (string, error)
	Get(ctx context.Context, id string) (*store.Record, error)
}

type Server struct {
	cfg         config.Server
	jpegQuality int
	maxSide     int
	ttl         time.Duration
	faceFraming bool

	proc    Processor
	results ResultStore
	health  *Health
	limiter *ipLimiter
	logger  zerolog.Logger
	engine  *gin.Engine
}

type Option func(s *Server)

// WithFaceFraming 页面上是否提示人脸构图可用
func WithFaceFraming(enabled bool) Option {
	return func(s *Server) {
		s.faceFraming = enabled
	}
}

func New(cfg *config.Config, proc Processor, results ResultStore, health *Health, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:         cfg.Server,
		jpegQuality: cfg.Processing.JPEGQuality,
		maxSide:     cfg.Processing.MaxSide,
		ttl:         cfg.Store.TTL,
		proc:        proc,
		results:     results,
		health:      health,
		limiter:     newIPLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes()
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(template.FuncMap{"dict": dict}).ParseFS(templatesFS, "templates/*.html")))
	r.Use(requestLogger(s.logger), recovery())

	r.GET("/", s.index)
	r.GET("/healthz", s.healthz)

	api := r.Group("/api")
	api.GET("/presets", s.presets)
	api.POST("/process", rateLimit(s.limiter), s.process)

	results := api.Group("/results/:id")
	results.GET("", s.result)
	results.GET("/original", s.preview(func(rec *store.Record) *image.NRGBA { return rec.Original }))
	results.GET("/processed", s.preview(func(rec *store.Record) *image.NRGBA { return rec.Processed }))
	results.GET("/download", s.download)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞直到 ctx 结束，然后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// dict 模板里给子模板传多个参数：dict "k1" v1 "k2" v2
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, errors.New("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}
