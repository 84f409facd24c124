package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ASSET-ledger/internal/asset_mgmt/assets"
	"ASSET-ledger/internal/asset_mgmt/lends"
	"ASSET-ledger/internal/asset_mgmt/stock"
	"ASSET-ledger/internal/maintenance/executions"
	"ASSET-ledger/internal/maintenance/schedules"
	"ASSET-ledger/internal/maintenance/weekview"
	"ASSET-ledger/internal/platform/apidocs"
	"ASSET-ledger/internal/platform/auth"
	"ASSET-ledger/internal/platform/blob"
	"ASSET-ledger/internal/platform/config"
	"ASSET-ledger/internal/platform/db"
	"ASSET-ledger/internal/platform/metrics"
	"ASSET-ledger/internal/platform/middleware"
	"ASSET-ledger/internal/platform/notify"
)

func main() {
	cfgPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// 設定読み込み
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[ERROR] config: %v", err)
	}
	log.Printf("[INFO] mode:%s driver:%s", cfg.Mode, cfg.DB.Driver)

	ctx := context.Background()
	conn, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[INFO] connected to DB (%s)", conn.Dialect)

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		log.Fatalf("[ERROR] blob store: %v", err)
	}
	log.Printf("[INFO] signature store: %s", blobs.Driver())

	// メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	retry := db.NewRetrier(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	retry.OnRetry = func(op string, _ int, _ error) { m.Retry(op) }

	stockSvc, err := stock.NewService(conn, stock.Options{
		Threshold: cfg.Ledger.LowStockThreshold,
		Basis:     stock.Basis(cfg.Ledger.LowStockBasis),
		CacheSize: cfg.StockCacheSize(),
		Metrics:   m,
	})
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	// コミット後通知: 在庫キャッシュは同期で落とし、ダッシュボード向けは非同期
	hub := notify.NewHub()
	hub.OnCommit(stockSvc.Cache().OnEvent)
	hub.Subscribe(notify.LogSubscriber)

	lendSvc := lends.NewService(conn, lends.Deps{
		Blobs:     blobs,
		Publisher: hub,
		Stock:     stockSvc,
		Retrier:   retry,
		Metrics:   m,
		LocalLock: cfg.UseLocalLock(),
	})
	schedSvc := schedules.NewService(conn, hub, retry, m)
	execSvc := executions.NewService(conn, hub, retry, m)

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", "Location", middleware.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowCredentials: true,
		}))
		apidocs.Register(r)
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		pctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(pctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// /api/v2 : 参照は公開、更新系は jwt_secret があれば認証必須
	api := r.Group("/api/v2")
	write := api.Group("", auth.Optional(cfg.Auth.JWTSecret))

	auth.RegisterRoutes(api, write, auth.NewService(conn, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))
	assets.RegisterRoutes(api, write, assets.NewService(conn, hub))
	stock.RegisterRoutes(api, stockSvc)
	lends.RegisterRoutes(api, write, lendSvc)
	schedules.RegisterRoutes(api, write, schedSvc)
	executions.RegisterRoutes(api, write, execSvc)
	weekview.RegisterRoutes(api, weekview.NewService(schedSvc, execSvc))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			log.Printf("[INFO] listening on https://%s", srv.Addr)
			err = srv.ListenAndServeTLS(cfg.CertPath(), cfg.KeyPath())
		} else {
			log.Printf("[WARN] no certificate configured, listening on http://%s", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Printf("[ERROR] shutdown: %v", err)
	}
	hub.Wait()
}
