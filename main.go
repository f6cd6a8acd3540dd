package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chaos-io/prophoto/config"
	"github.com/chaos-io/prophoto/photo"
	"github.com/chaos-io/prophoto/photo/rembg"
	"github.com/chaos-io/prophoto/server"
	"github.com/chaos-io/prophoto/store"
	"github.com/chaos-io/prophoto/util"
	plog "github.com/chaos-io/prophoto/util/log"
)

type cliFlags struct {
	in, out    string
	background string
	color      string
	enhance    bool
	brightness float64
	contrast   float64
	sharpness  float64
	saturation float64
	framing    string
}

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径，不存在时使用默认配置")

	var cli cliFlags
	flag.StringVar(&cli.in, "in", "", "输入图片（本地路径或 http(s) 地址），为空时启动 HTTP 服务")
	flag.StringVar(&cli.out, "out", photo.FormatJPEG.FileName(), "输出文件，扩展名决定格式（.jpg/.png）")
	flag.StringVar(&cli.background, "bg", photo.PresetCleanWhite, "背景预设")
	flag.StringVar(&cli.color, "color", photo.DefaultCustomColor, "bg=custom 时的背景色")
	flag.BoolVar(&cli.enhance, "enhance", true, "是否增强")
	flag.Float64Var(&cli.brightness, "brightness", photo.BrightnessRange.Default, "亮度")
	flag.Float64Var(&cli.contrast, "contrast", photo.ContrastRange.Default, "对比度")
	flag.Float64Var(&cli.sharpness, "sharpness", photo.SharpnessRange.Default, "锐度")
	flag.Float64Var(&cli.saturation, "saturation", photo.SaturationRange.Default, "饱和度")
	flag.StringVar(&cli.framing, "framing", string(photo.FramingNone), "构图：none/subject/face/smart")
	flag.Parse()

	if err := run(*configPath, cli); err != nil {
		fmt.Fprintln(os.Stderr, "prophoto:", err)
		os.Exit(1)
	}
}

func run(configPath string, cli cliFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := plog.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	remover, err := rembg.New(cfg.Segmentation)
	if err != nil {
		return err
	}
	framer, err := photo.LoadFramer(cfg.Processing.FaceModel)
	if err != nil {
		return err
	}
	proc := photo.NewProcessor(remover,
		photo.WithMaxSide(cfg.Processing.MaxSide),
		photo.WithConcurrency(cfg.Server.MaxConcurrent),
		photo.WithFramer(framer),
	)

	if cli.in != "" {
		return processFile(ctx, cfg, proc, cli)
	}
	return serve(ctx, cfg, logger, remover, proc, framer.FaceDetection())
}

// processFile 命令行模式：处理一张图片后退出
func processFile(ctx context.Context, cfg *config.Config, proc *photo.Processor, cli cliFlags) error {
	defer util.Trace("process " + cli.in)()

	opts := photo.Options{
		Background:  cli.background,
		CustomColor: cli.color,
		Framing:     photo.Framing(cli.framing),
		Enhancement: photo.Disabled(),
	}
	if cli.enhance {
		opts.Enhancement = photo.Enhancement{
			Enabled:    true,
			Brightness: cli.brightness,
			Contrast:   cli.contrast,
			Sharpness:  cli.sharpness,
			Saturation: cli.saturation,
		}
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	format, err := photo.ParseFormat(strings.TrimPrefix(filepath.Ext(cli.out), "."))
	if err != nil {
		return err
	}

	var img image.Image
	if strings.HasPrefix(cli.in, "http://") || strings.HasPrefix(cli.in, "https://") {
		img, err = util.DownloadImage(ctx, cli.in, cfg.Server.MaxUploadBytes())
	} else {
		img, err = util.OpenImage(cli.in)
	}
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	res, err := proc.Process(ctx, img, opts)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(cli.out); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}
	f, err := os.Create(cli.out)
	if err != nil {
		return err
	}
	if err := photo.Encode(f, res.Image, format, cfg.Processing.JPEGQuality); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("out", cli.out).
		Bool("background_removed", res.BackgroundRemoved).
		Msg("headshot written")
	return nil
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger, remover rembg.Remover, proc *photo.Processor, faceFraming bool) error {
	results, err := store.New(cfg.Store)
	if err != nil {
		return err
	}
	defer results.Close()

	health := server.NewHealth(cfg.Segmentation.Backend, remover)
	probeCtx := plog.Component(logger, "health").WithContext(ctx)
	if err := health.Probe(probeCtx); err != nil {
		logger.Warn().Err(err).Msg("segmentation backend not reachable yet")
	}

	scheduler := cron.New(cron.WithLogger(plog.CronLogger(plog.Component(logger, "cron"))))
	if err := schedule(scheduler, cfg.Segmentation.HealthSpec, func() {
		_ = health.Probe(probeCtx)
	}); err != nil {
		return fmt.Errorf("schedule health probe: %w", err)
	}
	storeLogger := plog.Component(logger, "store")
	if err := schedule(scheduler, cfg.Store.StatsSpec, func() {
		results.LogStats(storeLogger)
	}); err != nil {
		return fmt.Errorf("schedule store stats: %w", err)
	}

	srv := server.New(cfg, proc, results, health, plog.Component(logger, "http"),
		server.WithFaceFraming(faceFraming))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Segmentation.Backend).
		Bool("face_framing", faceFraming).
		Msg("prophoto started")
	return g.Wait()
}

// schedule spec 为空表示不启用该任务
func schedule(c *cron.Cron, spec string, job func()) error {
	if spec == "" {
		return nil
	}
	_, err := c.AddFunc(spec, job)
	return err
}
