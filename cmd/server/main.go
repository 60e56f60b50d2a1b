package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/service"
	"github.com/trungvu/tripflow/internal/config"
	"github.com/trungvu/tripflow/internal/infrastructure/email"
	"github.com/trungvu/tripflow/internal/infrastructure/persistence/repository"
	"github.com/trungvu/tripflow/internal/infrastructure/persistence/sqlite"
	"github.com/trungvu/tripflow/internal/infrastructure/token"
	"github.com/trungvu/tripflow/internal/infrastructure/worker"
	httpiface "github.com/trungvu/tripflow/internal/interfaces/http"
	"github.com/trungvu/tripflow/pkg/database"
	"github.com/trungvu/tripflow/pkg/utils"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting trip approval service", zap.Int("port", cfg.Server.Port))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Persistence
	txManager := sqlite.NewDB(db.DB, logger)
	tripRepo := repository.NewTripRepository(db.DB, logger)
	groupRepo := repository.NewGroupRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// External adapters
	codec := token.NewCodec(cfg.Token.Secret, cfg.Token.TTL)
	gateway := email.NewGateway(email.Config{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		Username:    cfg.Email.Username,
		Password:    cfg.Email.Password,
		From:        cfg.Email.From,
		SenderName:  cfg.Email.SenderName,
		AdminEmails: cfg.Approval.AdminEmails,
		SendTimeout: cfg.Email.SendTimeout,
	}, logger)

	serviceLogger := &zapServiceLogger{sugar: logger.Sugar()}

	// Application services
	submissionService := service.NewSubmissionService(tripRepo, auditRepo, txManager, codec, gateway,
		service.SubmissionConfig{
			UrgencyWindow: cfg.Approval.UrgencyWindow,
			ExemptRoles:   cfg.Approval.ExemptRoles,
			PerKmRate:     cfg.Approval.PerKmRate,
			BaseURL:       cfg.Server.BaseURL,
		}, serviceLogger)

	optimizerService := service.NewOptimizerService(tripRepo, groupRepo, auditRepo, txManager, gateway,
		service.OptimizerConfig{DiscountRatio: cfg.Optimizer.DiscountRatio}, serviceLogger)

	decisionService := service.NewDecisionService(tripRepo, auditRepo, txManager, codec, gateway,
		optimizerService, cfg.Approval.AdminEmails, serviceLogger)

	sweeperService := service.NewSweeperService(tripRepo, auditRepo, txManager, gateway,
		cfg.Token.TTL, serviceLogger)

	auditService := service.NewAuditService(auditRepo, serviceLogger)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := worker.NewManager(logger)
	workers.Register(worker.NewExpirySweeper(sweeperService, cfg.Sweeper.Interval, logger))
	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, submissionService, decisionService, optimizerService, auditService, serviceLogger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		// Cancelling the context stops the HTTP listener via server.Start.
		cancel()
		<-serverErr
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
		cancel()
	}

	if err := workers.StopAll(); err != nil {
		logger.Error("Worker shutdown incomplete", zap.Error(err))
	}

	logger.Info("Server exited")
}

// zapServiceLogger adapts zap to the keysAndValues logger the application
// layer expects.
type zapServiceLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapServiceLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapServiceLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}
