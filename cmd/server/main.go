package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/classboard/internal/config"
	"github.com/classboard/internal/db"
	"github.com/classboard/internal/handler"
	"github.com/classboard/internal/kv"
	"github.com/classboard/internal/router"
	"github.com/classboard/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Printf("[db] close failed: %v", err)
		}
	}()

	store := kv.NewGormStore(gdb)
	activity := service.NewActivityService(store).WithLocation(cfg.Location)

	deps := service.PostStoreDeps{Local: store}
	if service.PostBackend(cfg.PostBackend) == service.BackendMongo {
		mongoDB, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
		if err != nil {
			log.Fatalf("failed to connect mongo: %v", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoDB.Close(closeCtx); err != nil {
				log.Printf("[mongo] disconnect failed: %v", err)
			}
		}()
		deps.Collection = mongoDB.Posts
	}

	posts, err := service.NewPostStore(service.PostBackend(cfg.PostBackend), deps, service.PostStoreOptions{
		Strict:   cfg.StrictPostList,
		Activity: activity,
	})
	if err != nil {
		log.Fatalf("failed to build post store: %v", err)
	}
	log.Printf("[posts] using %s backend", cfg.PostBackend)

	// 启动时先清理一次过期活跃度记录，之后按计划执行
	scheduler, err := service.NewCleanupScheduler(activity, cfg.ActivityCleanupSchedule)
	if err != nil {
		log.Fatalf("failed to schedule activity cleanup: %v", err)
	}
	scheduler.RunNow(ctx)
	scheduler.Start()
	defer scheduler.Stop()

	api := handler.NewAPI(posts, activity, store, cfg.DefaultAdminPassword)
	r := router.SetupRouter(api, cfg.SessionSecret)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("[server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown failed: %v", err)
	}
}
