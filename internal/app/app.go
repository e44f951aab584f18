package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/healthsync/internal/account"
	"github.com/hitoshi/healthsync/internal/config"
	"github.com/hitoshi/healthsync/internal/credstore"
	"github.com/hitoshi/healthsync/internal/event"
	"github.com/hitoshi/healthsync/internal/gateway"
	"github.com/hitoshi/healthsync/internal/handler"
	"github.com/hitoshi/healthsync/internal/logger"
	"github.com/hitoshi/healthsync/internal/metrics"
	"github.com/hitoshi/healthsync/internal/session"
	"github.com/hitoshi/healthsync/internal/syncjob"
	"github.com/hitoshi/healthsync/internal/vault"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再セットアップ
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("AGENT_PORT")
		if port == "" {
			port = "8787"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandSync:
		if len(args) < 2 {
			return fmt.Errorf("usage: healthsync sync <provider>")
		}
		return runSync(w, cfg, args[1])
	case CommandServe:
		return runServe(cfg)
	default:
		return runServe(cfg)
	}
}

// core はエージェントの中核コンポーネント一式。
type core struct {
	bus        *event.Bus
	registry   *prometheus.Registry
	collector  *metrics.Collector
	store      *credstore.Store
	gateway    *gateway.Gateway
	controller *session.Controller
	arena      *syncjob.Arena
}

// buildCore は全コンポーネントをワイヤリングする。
// arenaのポーリングループはbaseCtxのキャンセルで全停止する。
func buildCore(baseCtx context.Context, cfg *config.Config) (*core, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	bus := event.NewBus(slog.Default(), 16)

	credPath := cfg.CredentialsPath
	if credPath == "" {
		var err error
		credPath, err = config.DefaultCredentialsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials path: %w", err)
		}
	}
	store := credstore.New(credPath)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	gw := gateway.New(httpClient, store, bus, collector, slog.Default(), gateway.Config{
		BaseURL:        cfg.APIBaseURL,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	controller := session.NewController(gw, store, bus, slog.Default())

	arena := syncjob.NewArena(baseCtx, gw, collector, slog.Default(), syncjob.Config{
		PollInterval: cfg.SyncPollInterval,
		DisplayDelay: cfg.SyncDisplayDelay,
	})

	return &core{
		bus:        bus,
		registry:   registry,
		collector:  collector,
		store:      store,
		gateway:    gw,
		controller: controller,
		arena:      arena,
	}, nil
}

// watchSignals はグローバルシグナルの購読を開始する。
//
//   - session_invalidated: セッションコントローラがanonymousへ遷移する
//   - session_state(anonymous): 全プロバイダのポーリングを停止する
//
// 返した関数で購読を解除できる。
func watchSignals(ctx context.Context, c *core) func() {
	invalidated, unsubInvalidated := c.bus.Subscribe(event.KindSessionInvalidated)
	go c.controller.Watch(ctx, invalidated)

	states, unsubStates := c.bus.Subscribe(event.KindSessionState)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-states:
				if !ok {
					return
				}
				if st, ok := ev.Payload.(session.State); ok && st == session.StateAnonymous {
					c.arena.CancelAll()
				}
			}
		}
	}()

	return func() {
		unsubInvalidated()
		unsubStates()
	}
}

// runServe はローカルエージェントAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、localhostのみにバインドしたHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}

	unsubscribe := watchSignals(ctx, c)
	defer unsubscribe()

	// 永続化トークンからのセッション復元。
	// 失敗（オフライン等）してもエージェント自体は起動する。
	hydrateCtx, hydrateCancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	if err := c.controller.Hydrate(hydrateCtx); err != nil {
		slog.Warn("セッションの復元に失敗しました", slog.String("error", err.Error()))
	}
	hydrateCancel()

	accountSvc := account.NewService(c.gateway, c.controller, slog.Default())
	vaultClient := vault.NewClient(c.gateway, slog.Default())

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.UIOrigin,
		MetricsHandler:    metrics.Handler(c.registry),
		SessionService:    c.controller,
		AccountService:    accountSvc,
		SyncService:       c.arena,
		VaultService:      vaultClient,
	})

	// ローカルUI専用のためloopbackのみにバインドする
	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.AgentPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("agent server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down agent server...")

	// ポーリングループを先に止める
	c.arena.CancelAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("agent server stopped gracefully")
	return nil
}

// runSync は単一プロバイダの同期をワンショット実行する。
// 認証済みセッションが必要。進行状況をwriterへ出力し、
// ジョブが終端状態に達するまでブロックする。
func runSync(w io.Writer, cfg *config.Config, provider string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}

	unsubscribe := watchSignals(ctx, c)
	defer unsubscribe()

	if err := c.controller.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if c.controller.State() != session.StateAuthenticated {
		return fmt.Errorf("not logged in: start the agent and log in first")
	}

	snap, err := c.arena.Start(ctx, provider)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	fmt.Fprintf(w, "sync started: provider=%s state=%s\n", snap.Provider, snap.State)

	ticker := time.NewTicker(cfg.SyncPollInterval)
	defer ticker.Stop()

	lastStage := ""
	for {
		select {
		case <-ctx.Done():
			c.arena.Cancel(provider)
			return ctx.Err()
		case <-ticker.C:
			snap := c.arena.Status(provider)

			if snap.Status != nil && string(snap.Status.Stage) != lastStage {
				lastStage = string(snap.Status.Stage)
				fmt.Fprintf(w, "stage=%s message=%s progress=%d/%d\n",
					snap.Status.Stage, snap.Status.Message, snap.Status.Progress, snap.Status.Total)
			}

			switch snap.State {
			case syncjob.StateComplete:
				fmt.Fprintf(w, "sync completed: provider=%s\n", provider)
				return nil
			case syncjob.StateErrored:
				msg := ""
				if snap.Status != nil {
					msg = snap.Status.Message
				}
				return fmt.Errorf("sync failed: provider=%s: %s", provider, msg)
			case syncjob.StateIdle:
				// 表示期間経過後のクリア、または外部キャンセル
				fmt.Fprintf(w, "sync finished: provider=%s\n", provider)
				return nil
			}
		}
	}
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
