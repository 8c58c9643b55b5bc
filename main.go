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
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/armory-kit/armory/internal/armory"
	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/config"
	"github.com/armory-kit/armory/internal/logging"
	"github.com/armory-kit/armory/internal/resource"
	"github.com/armory-kit/armory/internal/revalidate"
	"github.com/armory-kit/armory/internal/server"
	"github.com/armory-kit/armory/internal/server/routes"
	"github.com/armory-kit/armory/internal/upstream"
	"github.com/armory-kit/armory/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	flushCache  bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

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
		fields["region"] = cfg.Global.Region
		fields["cache"] = cache.Describe(cfg.CacheOptions())
		fields["credentials"] = cfg.Global.AuthMode()
		fields["resources"] = len(cfg.Resources)
		fields["resource_ttl"] = resourceTTLs(cfg)
		fields["check_realms"] = cfg.Global.CheckRealms
		fields["cache_admin"] = cfg.Global.AdminToken != ""
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 缓存引擎 → 签名/拉取器 → pipeline → armory client → Fiber server，
	// 所有请求共享同一个 pipeline 与缓存实例。
	rt, err := buildRuntime(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存失败: %v\n", err)
		return 1
	}
	defer rt.close(logger)

	if opts.flushCache {
		return flushCache(rt, logger, opts.configPath)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["region"] = cfg.Global.Region
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache"] = cache.Describe(cfg.CacheOptions())
	fields["credentials"] = cfg.Global.AuthMode()
	fields["check_realms"] = cfg.Global.CheckRealms
	fields["cache_admin"] = cfg.Global.AdminToken != ""
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, rt, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// resourceTTLs 汇总每个资源生效的缓存 TTL，供 -check-config 输出。
func resourceTTLs(cfg *config.Config) map[string]string {
	result := make(map[string]string)
	for _, key := range resource.Keys() {
		result[key] = cfg.ResourceTTL(key).String()
	}
	return result
}

// appRuntime 持有进程级共享组件。
type appRuntime struct {
	pipeline *revalidate.Pipeline
	client   *armory.Client
	closer   func() error
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*appRuntime, error) {
	backend, closer, err := cache.Open(cfg.CacheOptions())
	if err != nil {
		return nil, err
	}

	fetcherOpts := upstream.FetcherOptions{UserAgent: version.UserAgent()}
	if cfg.Global.HasCredentials() {
		signer, err := upstream.NewSigner(cfg.Global.Credentials())
		if err != nil {
			_ = closer()
			return nil, err
		}
		fetcherOpts.Signer = signer
	}
	fetcher := upstream.NewFetcher(upstream.NewClient(cfg.Global.UpstreamTimeout.DurationValue()), fetcherOpts)

	pipeline := revalidate.New(fetcher, revalidate.Options{
		TTL:    cfg.Global.CacheTTL.DurationValue(),
		Logger: logger,
	})
	if err := pipeline.Init(ctx, backend); err != nil {
		_ = closer()
		return nil, err
	}

	client, err := armory.New(pipeline, armory.Options{
		Region:      cfg.Global.Region,
		UseSSL:      cfg.Global.UseSSL,
		BaseURL:     cfg.Global.BaseURL,
		Signed:      fetcher.CanSign(),
		CheckRealms: cfg.Global.CheckRealms,
		TTL:         cfg.Global.CacheTTL.DurationValue(),
		Strategies:  cfg.Strategies(),
	})
	if err != nil {
		_ = pipeline.Shutdown(ctx)
		_ = closer()
		return nil, err
	}

	return &appRuntime{pipeline: pipeline, client: client, closer: closer}, nil
}

// close 先让快照型引擎落盘，再释放底层连接。
func (rt *appRuntime) close(logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.pipeline.Shutdown(ctx); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Error("cache_shutdown_failed")
	}
	if err := rt.closer(); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("cache_close_failed")
	}
}

func flushCache(rt *appRuntime, logger *logrus.Logger, configPath string) int {
	fields := logging.BaseFields("flush_cache", configPath)
	fields["engine"] = rt.pipeline.Engine()
	if err := rt.pipeline.FlushAll(context.Background()); err != nil {
		logger.WithError(err).WithFields(fields).Error("缓存清空失败")
		fmt.Fprintf(stdErr, "清空缓存失败: %v\n", err)
		return 1
	}
	fields["result"] = "ok"
	logger.WithFields(fields).Info("缓存已清空")
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("armory", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		flushOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ARMORY_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&flushOnly, "flush", false, "清空所有缓存分组后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if checkOnly && flushOnly {
		return cliOptions{}, errors.New("-check-config 与 -flush 不能同时使用")
	}

	path := os.Getenv("ARMORY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		flushCache:  flushOnly,
		showVersion: showVer,
	}, nil
}

func newHTTPApp(cfg *config.Config, rt *appRuntime, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Lookups:    rt.client,
		Cache:      rt.pipeline,
		ListenPort: cfg.Global.ListenPort,
		AdminToken: cfg.Global.AdminToken,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterResourceRoutes(app, cfg.Global.CacheTTL.DurationValue(), cfg.Strategies())
	return app, nil
}

func startHTTPServer(cfg *config.Config, rt *appRuntime, logger *logrus.Logger) error {
	app, err := newHTTPApp(cfg, rt, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.WithFields(logrus.Fields{"action": "shutdown", "signal": sig.String()}).Info("Fiber 服务停止")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = app.ShutdownWithContext(ctx)
	}()

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
