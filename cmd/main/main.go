package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mer-coder/curve-convert/pkg/config"
	"github.com/mer-coder/curve-convert/pkg/curve"
	"github.com/mer-coder/curve-convert/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "curve-convert",
	Short:         "通过批量结算的联合曲线市商兑换代币",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径(yaml/json/toml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// app 命令共用的配置, 日志和节点连接
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	conn   *curve.Connection
}

// setup 读取配置并连接节点
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateChain(); err != nil {
		return nil, fmt.Errorf("配置不完整: %w", err)
	}

	key, err := curve.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	conn, err := curve.Dial(ctx, cfg.RPCURL, key, cfg.MarketConfig(), cfg.SenderOptions(), logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, conn: conn}, nil
}

func (a *app) close() {
	a.conn.Close()
	_ = a.logger.Sync()
}

// serveMetrics 在 addr 上提供 /metrics, 返回关闭函数
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics 已启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics 服务异常退出", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
