package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"groovie/internal/usertoken"
	"groovie/internal/util"
	"groovie/pkg/ai"
	"groovie/pkg/storage"
	"groovie/pkg/store"
	"groovie/services/api/internal/app"
	"groovie/services/api/internal/config"
	"groovie/services/api/internal/server"
	"groovie/services/api/internal/sources"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to init postgres store", "err", err)
		}
		st = gormStore
	} else {
		logger.Warn("databaseURL empty, using in-memory store")
		st = store.NewMemoryStore()
	}

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			util.Fatal("failed to connect redis", "addr", cfg.RedisAddr, "err", err)
		}
		defer client.Close()
		redisClient = client
	}

	generator, err := ai.NewGenerator(ai.ProviderConfig{
		Provider: cfg.GenerationProvider,
		BaseURL:  cfg.GenerationBaseURL,
		APIKey:   cfg.GenerationAPIKey,
		Model:    cfg.GenerationModel,
	})
	if err != nil {
		util.Fatal("failed to init generator", "err", err)
	}

	appCfg := app.Config{
		Store:        st,
		Generator:    generator,
		Access:       store.NewAccessLevels(st, redisClient, cfg.AccessCacheTTLDuration()),
		HistoryLimit: cfg.HistoryLimit,
	}
	if cfg.SourceFetchEnabled {
		appCfg.Sources = sources.NewFetcher(sources.Options{})
	}
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "endpoint", cfg.MinioEndpoint, "err", err)
		}
		appCfg.Artifacts = storage.NewArtifactPublisher(objects, cfg.ArtifactURLExpiryDuration())
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var verifier *usertoken.Verifier
	if cfg.AuthJWKSURL != "" {
		leeway, _ := config.ParseJWTLeeway(cfg.JWTLeeway)
		verifier, err = usertoken.NewVerifier(ctx, usertoken.Config{
			JWKSURL:  cfg.AuthJWKSURL,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   leeway,
		})
		if err != nil {
			util.Fatal("failed to init token verifier", "err", err)
		}
	} else {
		logger.Warn("authJwksURL empty, trusting X-User-Id header")
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trustedProxyCidrs", "err", err)
	}
	httpServer, err := server.New(server.Config{
		App:                    appCore,
		TokenVerifier:          verifier,
		Redis:                  redisClient,
		ChatRateLimitPerMinute: cfg.ChatRateLimitPerMinute,
		TrustedProxies:         trusted,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 135 * time.Second, // generation may take 120s
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
