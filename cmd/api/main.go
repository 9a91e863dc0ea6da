package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ArowuTest/lottery-settlement/api/routes"
	"github.com/ArowuTest/lottery-settlement/internal/config"
	"github.com/ArowuTest/lottery-settlement/internal/handlers"
	"github.com/ArowuTest/lottery-settlement/internal/metrics"
	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	mongorepo "github.com/ArowuTest/lottery-settlement/internal/repositories/mongodb"
	rediscache "github.com/ArowuTest/lottery-settlement/internal/repositories/redis"
	"github.com/ArowuTest/lottery-settlement/internal/services"
	"github.com/ArowuTest/lottery-settlement/pkg/contract"
	"github.com/ArowuTest/lottery-settlement/pkg/custody"
	"github.com/ArowuTest/lottery-settlement/pkg/ledger"
	mongodb "github.com/ArowuTest/lottery-settlement/pkg/mongodb"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/exp/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if parseLevel(cfg.LogLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB.URI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			slog.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()
	db := mongoClient.Database(cfg.MongoDB.Database)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	cache, err := newCache(ctx, cfg, db)
	if err != nil {
		slog.Error("Failed to initialize cache", "driver", cfg.Cache.Driver, "error", err)
		os.Exit(1)
	}

	ledgerExec := newExecutor(cfg, m, "ledger")
	contractExec := newExecutor(cfg, m, "contract")
	custodyExec := newExecutor(cfg, m, "custody")

	reader := ledger.NewReader(cfg.Ledger.IndexURL, cfg.Ledger.APIKey, ledgerExec, ledger.WithPageSize(cfg.Ledger.PageSize))

	var sender contract.MessageSender
	if cfg.Contract.Mnemonic != "" {
		key, err := contract.DeriveWalletKey(cfg.Contract.Mnemonic)
		if err != nil {
			slog.Error("Failed to derive wallet key", "error", err)
			os.Exit(1)
		}
		walletSender, err := contract.NewWalletSender(key, cfg.Contract.WalletVersion)
		if err != nil {
			slog.Error("Failed to initialize wallet", "error", err)
			os.Exit(1)
		}
		sender = walletSender
	} else {
		slog.Warn("No contract mnemonic configured, draw and jackpot updates are disabled")
	}

	contractClient, err := contract.NewClient(contract.Config{
		RPCURL:             cfg.Contract.RPCURL,
		APIKey:             cfg.Contract.APIKey,
		Address:            cfg.Contract.Address,
		DrawOpcode:         cfg.Contract.DrawOpcode,
		SetStateOpcode:     cfg.Contract.SetStateOpcode,
		MessageFeeNano:     cfg.Contract.MessageFeeNano,
		RequestsPerSecond:  cfg.Contract.RequestsPerSecond,
		PropagationTimeout: time.Duration(cfg.Contract.PropagationSeconds) * time.Second,
		PollInterval:       time.Duration(cfg.Contract.ConfirmPollSeconds) * time.Second,
	}, contractExec, sender)
	if err != nil {
		slog.Error("Failed to initialize contract client", "error", err)
		os.Exit(1)
	}

	signer, err := custody.NewSignerFromFile(cfg.Custody.APIKey, cfg.Custody.PrivateKeyPath)
	if err != nil {
		slog.Error("Failed to load custody signing key", "error", err)
		os.Exit(1)
	}
	custodyClient := custody.NewClient(cfg.Custody.BaseURL, cfg.Custody.APIKey, signer, custodyExec)

	settlementService := services.NewSettlementService(reader, cfg.Ledger.Account)
	payoutService := services.NewPayoutService(custodyClient)
	announcementService := services.NewAnnouncementService(mongorepo.NewAnnouncementRepository(db))
	drawService := services.NewDrawService(
		services.DrawServiceConfig{
			LotteryAccount:   cfg.Ledger.Account,
			TicketPriceNano:  int64(math.Round(cfg.Lottery.TicketPrice * float64(models.NanoPerUnit))),
			CacheTTL:         cfg.Cache.CacheTTL(),
			PaymentAccount:   custody.PaymentAccount{ID: cfg.Custody.PaymentAccountID, Type: cfg.Custody.PaymentAccountType},
			AffiliateAccount: custody.PaymentAccount{ID: cfg.Custody.AffiliateAccountID, Type: cfg.Custody.AffiliateAccountType},
			AssetID:          cfg.Custody.AssetID,
		},
		contractClient,
		reader,
		settlementService,
		payoutService,
		mongorepo.NewDrawRunRepository(db),
		cache,
		services.WithRunObserver(m),
		services.WithWinnerPublisher(announcementService),
	)

	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		SettlementHandler:   handlers.NewSettlementHandler(drawService),
		AnnouncementHandler: handlers.NewAnnouncementHandler(announcementService),
		Metrics:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Observer:            m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// Draws wait for on-chain confirmation, so in-flight requests get the propagation window.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Contract.PropagationSeconds+5)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	slog.Info("Server exiting")
}

func newExecutor(cfg *config.Config, m *metrics.Metrics, name string) *resilience.Executor {
	return resilience.New(resilience.Config{
		Name:             name,
		MaxRetries:       cfg.Resilience.MaxRetries,
		BaseDelay:        time.Duration(cfg.Resilience.BaseDelayMs) * time.Millisecond,
		MaxDelay:         time.Duration(cfg.Resilience.MaxDelayMs) * time.Millisecond,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		BreakDuration:    time.Duration(cfg.Resilience.BreakSeconds) * time.Second,
	}, m.ExecutorOptions(name)...)
}

func newCache(ctx context.Context, cfg *config.Config, db *mongo.Database) (repositories.Cache, error) {
	switch cfg.Cache.Driver {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		return rediscache.NewCache(client), nil
	case "none":
		return repositories.NopCache{}, nil
	default:
		cache := mongorepo.NewCacheRepository(db)
		if err := cache.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return cache, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
