// Package app はコマンドラインのエントリーポイントと依存関係の組み立てを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/hitoshi/archbuilder/internal/apiclient"
	"github.com/hitoshi/archbuilder/internal/config"
	"github.com/hitoshi/archbuilder/internal/handler"
	"github.com/hitoshi/archbuilder/internal/logger"
	"github.com/hitoshi/archbuilder/internal/metrics"
	"github.com/hitoshi/archbuilder/internal/middleware"
)

// ErrUnknownCommand はサポート外のサブコマンドが指定された場合のエラー。
var ErrUnknownCommand = errors.New("unknown command")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// logwが指定された場合はログ出力先としてそのwriterを使用する。
func Init(logw io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(logw, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応する処理を実行する。
// argsにはos.Args[1:]を渡す。コマンドの結果はoutに、ログはerrwに出力する。
func Run(out, errw io.Writer, args []string) error {
	cmd := ParseCommand(args)
	var rest []string
	if len(args) > 0 {
		rest = args[1:]
	}

	switch cmd {
	case CommandHelp:
		printUsage(out)
		return nil
	case CommandUnknown:
		printUsage(errw)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	case CommandHealthcheck:
		// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(errw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd == CommandServe {
		log.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
			slog.String("api_base_url", cfg.APIBaseURL),
		)
		return runServe(ctx, cfg, log)
	}

	err = runClientCommand(ctx, cmd, rest, cfg, log, out, errw)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

// newServerHandler は認証プロキシのルーターを組み立てる。
// 戻り値の関数はバックグラウンド処理を停止する。
func newServerHandler(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (http.Handler, func(), error) {
	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	collector := metrics.NewCollector(reg)

	proxy, err := handler.NewProxyHandler(handler.ProxyConfig{
		BackendURL:     cfg.APIBaseURL,
		Client:         &http.Client{Timeout: cfg.RequestTimeout},
		MaxErrorText:   cfg.ProxyMaxErrorText,
		TrustedProxies: trusted,
		Metrics:        collector,
		Logger:         log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create proxy handler: %w", err)
	}

	rlConfig := middleware.DefaultRateLimiterConfig(cfg.RateLimitAuth)
	rlConfig.TrustedProxies = trusted
	rl := middleware.NewRateLimiter(rlConfig, log)

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            log,
		Proxy:             proxy,
		Gatherer:          reg,
	})
	return router, rl.Stop, nil
}

// runServe は認証プロキシサーバーを起動する。
// ctxがキャンセルされる（SIGINTまたはSIGTERMを受信する）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, cleanup, err := newServerHandler(cfg, log, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// バックエンドの待機上限より長くする
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("proxy server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down proxy server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("proxy server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// ErrorMessage はコマンドの失敗を利用者向けの1行に変換する。
// バックエンドやネットワークの失敗は解決済みのメッセージのみを返す。
func ErrorMessage(err error) string {
	var reqErr *apiclient.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return err.Error()
}
