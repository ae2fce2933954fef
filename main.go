package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/manga-hub/manga-hub/internal/cache"
	"github.com/manga-hub/manga-hub/internal/config"
	"github.com/manga-hub/manga-hub/internal/content"
	"github.com/manga-hub/manga-hub/internal/logging"
	"github.com/manga-hub/manga-hub/internal/metrics"
	"github.com/manga-hub/manga-hub/internal/negotiate"
	"github.com/manga-hub/manga-hub/internal/server"
	"github.com/manga-hub/manga-hub/internal/server/routes"
	"github.com/manga-hub/manga-hub/internal/stream"
	"github.com/manga-hub/manga-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["content_root"] = cfg.Content.Root
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化内容服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["content_root"] = cfg.Content.Root
	fields["cache_capacity"] = cfg.Content.MaxMemoryCache
	fields["cache_admission_limit"] = cfg.Content.CacheAdmissionLimit()
	fields["stream_threshold"] = cfg.Content.StreamThreshold
	fields["max_streams"] = cfg.Content.MaxConcurrentStreams
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	go svc.pressure.Run(ctx)

	if err := startHTTPServer(ctx, cfg, svc.app, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// service 持有进程内共享的组件，main 与测试都通过 buildService 构建。
type service struct {
	app      *fiber.App
	cache    *cache.Memory
	streams  *stream.Limiter
	pressure *cache.PressureMonitor
	recorder *metrics.Recorder
}

// buildService 遵循 “内存缓存 → 流限制器 → ETag → 内容目录 → 分发 handler → 指标 → Fiber” 顺序，
// 保证所有请求共享同一份缓存与限流实例。
func buildService(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	memory := cache.NewMemory(cfg.Content.MaxMemoryCache)
	streams := stream.NewLimiter(cfg.Content.MaxConcurrentStreams)
	etags := negotiate.NewETagger(cfg.Content.ETagCacheSize)

	source, err := content.NewFileSource(cfg.Content.Root)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder(nil)
	recorder.TrackCache(memory.Stats)
	recorder.TrackStreams(streams.Active)

	handler := content.NewHandler(source, memory, streams, etags, logger, content.Options{
		DefaultDocument:  cfg.Content.DefaultDocument,
		StreamThreshold:  cfg.Content.StreamThreshold,
		CompressMinBytes: int64(cfg.Content.CompressMinBytes),
		Observer:         recorder,
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Content:    handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, routes.Diagnostics{
		Cache:   memory,
		Streams: streams,
		ETags:   etags,
		Metrics: recorder.Handler(),
	})

	pressure := cache.NewPressureMonitor(
		memory,
		cfg.Content.PressureInterval.DurationValue(),
		cache.RuntimeHeapRatio,
		logging.Component(logger, "pressure_monitor"),
	)
	pressure.OnEvict(recorder.ObservePressureEvictions)

	return &service{
		app:      app,
		cache:    memory,
		streams:  streams,
		pressure: pressure,
		recorder: recorder,
	}, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("manga-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 MANGA_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("MANGA_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// startHTTPServer 阻塞监听，ctx 取消后在 ShutdownTimeout 内优雅关闭。
func startHTTPServer(ctx context.Context, cfg *config.Config, app *fiber.App, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Global.ShutdownTimeout.DurationValue())
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
