package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"poultry-core/internal/audit"
	"poultry-core/internal/auth"
	gradeapp "poultry-core/internal/grading/application"
	gradepg "poultry-core/internal/grading/infrastructure/postgres"
	gradeinterfaces "poultry-core/internal/grading/interfaces"
	invapp "poultry-core/internal/inventory/application"
	invpg "poultry-core/internal/inventory/infrastructure/postgres"
	invredis "poultry-core/internal/inventory/infrastructure/redis"
	invinterfaces "poultry-core/internal/inventory/interfaces"
	"poultry-core/internal/observability/metrics"
	pointsapp "poultry-core/internal/points/application"
	pointspg "poultry-core/internal/points/infrastructure/postgres"
	pointsinterfaces "poultry-core/internal/points/interfaces"
	pointsnotify "poultry-core/internal/points/notify"
	settleapp "poultry-core/internal/settlement/application"
	settlepg "poultry-core/internal/settlement/infrastructure/postgres"
	settleinterfaces "poultry-core/internal/settlement/interfaces"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.RegisterDBMetrics(db, logger)
	auditLogger := audit.NewStdLogger(logger)

	ledger := invpg.NewLedgerRepository(db)
	var locker invapp.KeyLocker = invapp.NewKeyMutex()
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		redisLocker, err := invredis.NewKeyLocker(client)
		if err != nil {
			logger.Fatalf("redis locker error: %v", err)
		}
		locker = redisLocker
	}
	guard, err := invapp.NewTransactionGuard(ledger, ledger, locker, invapp.WithLockWait(cfg.LockWait))
	if err != nil {
		logger.Fatalf("transaction guard error: %v", err)
	}
	balances, err := invapp.NewBalanceService(ledger, ledger)
	if err != nil {
		logger.Fatalf("balance service error: %v", err)
	}

	gradingCfg, err := gradeapp.LoadConfig(cfg.GradingConfigPath)
	if err != nil {
		logger.Fatalf("grading config error: %v", err)
	}

	pointsRepo := pointspg.NewRepository(db)
	pointsOpts := []pointsapp.ServiceOption{
		pointsapp.WithLogger(logger),
		pointsapp.WithSuspendThreshold(decimal.NewFromFloat(gradingCfg.SuspensionThreshold)),
	}
	if cfg.SuspendWebhookURL != "" {
		channel, err := pointsnotify.NewWebhookChannel(cfg.SuspendWebhookURL)
		if err != nil {
			logger.Fatalf("suspend webhook error: %v", err)
		}
		notifier, err := pointsnotify.NewSuspendNotifier(channel)
		if err != nil {
			logger.Fatalf("suspend notifier error: %v", err)
		}
		pointsOpts = append(pointsOpts, pointsapp.WithNotifier(notifier))
	}
	pointsService, err := pointsapp.NewService(pointsRepo, pointsOpts...)
	if err != nil {
		logger.Fatalf("points service error: %v", err)
	}

	settlementService, err := settleapp.NewService(
		settlepg.NewRepository(db),
		settlepg.NewVarianceStore(db),
		balances,
		guard,
		pointsRecorder{service: pointsService},
		settleapp.WithManagerDirectory(settlepg.NewManagerDirectory(db)),
	)
	if err != nil {
		logger.Fatalf("settlement service error: %v", err)
	}

	gradingService, err := gradeapp.NewService(gradepg.NewRepository(db), pointsRepo, gradingCfg)
	if err != nil {
		logger.Fatalf("grading service error: %v", err)
	}

	stockHandler, err := invinterfaces.NewStockHandler(guard, balances, auditLogger)
	if err != nil {
		logger.Fatalf("stock handler error: %v", err)
	}
	settlementHandler, err := settleinterfaces.NewSettlementHandler(settlementService, auditLogger)
	if err != nil {
		logger.Fatalf("settlement handler error: %v", err)
	}
	pointsHandler, err := pointsinterfaces.NewPointsHandler(pointsService, auditLogger)
	if err != nil {
		logger.Fatalf("points handler error: %v", err)
	}
	gradingHandler, err := gradeinterfaces.NewGradingHandler(gradingService, auditLogger)
	if err != nil {
		logger.Fatalf("grading handler error: %v", err)
	}

	scheduler := settleapp.NewScheduler(settlementService, cfg.SettlementCheckAt, logger)
	go scheduler.Start(context.Background())

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.DefaultPolicy())

	mux := http.NewServeMux()
	mux.Handle("/api/v1/stock/", stockHandler)
	mux.Handle("/api/v1/settlements", settlementHandler)
	mux.Handle("/api/v1/settlements/", settlementHandler)
	mux.Handle("/api/v1/points/", pointsHandler)
	mux.Handle("/api/v1/grading", gradingHandler)
	mux.Handle("/api/v1/grading/", gradingHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// pointsRecorder bridges settlement awards onto the points engine.
type pointsRecorder struct {
	service *pointsapp.Service
}

func (r pointsRecorder) RecordAward(ctx context.Context, award settleapp.PointAward) error {
	_, err := r.service.Record(ctx, pointsapp.RecordInput{
		StaffID:         award.StaffID,
		StoreID:         award.StoreID,
		Reason:          award.Reason,
		ReferenceID:     award.ReferenceID,
		WeightHandledKg: award.WeightHandledKg,
		VarianceKg:      award.VarianceKg,
	})
	return err
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	RedisAddr         string
	LockWait          time.Duration
	GradingConfigPath string
	SuspendWebhookURL string
	SettlementCheckAt string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RedisAddr:         getenvDefault("REDIS_ADDR", ""),
		LockWait:          getenvDuration("STOCK_LOCK_WAIT", 5*time.Second),
		GradingConfigPath: getenvDefault("GRADING_CONFIG", ""),
		SuspendWebhookURL: getenvDefault("SUSPEND_WEBHOOK_URL", ""),
		SettlementCheckAt: getenvDefault("SETTLEMENT_CHECK_AT", "23:30"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
