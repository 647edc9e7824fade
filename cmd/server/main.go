package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/portfolio-backend/internal/auth"
	"github.com/iliyamo/portfolio-backend/internal/config"
	"github.com/iliyamo/portfolio-backend/internal/database"
	"github.com/iliyamo/portfolio-backend/internal/handler"
	"github.com/iliyamo/portfolio-backend/internal/keepalive"
	"github.com/iliyamo/portfolio-backend/internal/middleware"
	"github.com/iliyamo/portfolio-backend/internal/notify"
	"github.com/iliyamo/portfolio-backend/internal/oauth"
	"github.com/iliyamo/portfolio-backend/internal/observability"
	"github.com/iliyamo/portfolio-backend/internal/otp"
	"github.com/iliyamo/portfolio-backend/internal/portfolio"
	"github.com/iliyamo/portfolio-backend/internal/queue"
	"github.com/iliyamo/portfolio-backend/internal/refresh"
	"github.com/iliyamo/portfolio-backend/internal/repository"
	"github.com/iliyamo/portfolio-backend/internal/router"
	"github.com/iliyamo/portfolio-backend/internal/token"
)

const tokenPurgeInterval = time.Hour

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Warn("sentry disabled", "err", err)
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		observability.FlushSentry()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	clock := clockwork.NewRealClock()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), logger)
	if rdb != nil {
		defer rdb.Close()
	}

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			logger.Debug("background task stopped", "task", name)
		}()
	}

	// one-time codes
	otpRepo, err := otpRepository(cfg, rdb, clock)
	if err != nil {
		return err
	}
	otps := otp.NewStore(otpRepo,
		otp.WithTTL(cfg.OTP.TTL),
		otp.WithMaxAttempts(cfg.OTP.MaxAttempts),
		otp.WithClock(clock),
		otp.WithLogger(logger),
	)
	background("otp-sweeper", otp.NewSweeper(otps, cfg.OTP.SweepInterval, logger).Run)

	notifier, err := otpNotifier(cfg, clock, logger, background)
	if err != nil {
		return err
	}

	// tokens
	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Production: cfg.IsProduction(),
	}, clock, logger)
	if err != nil {
		return err
	}
	registry, err := refreshRegistry(cfg, db, rdb, logger, background)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	google := oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURI,
	})
	registration := auth.NewRegistrationFlow(users, otps, notifier, auth.RegistrationConfig{
		BcryptCost:    cfg.BcryptCost,
		NotifyTimeout: cfg.Notify.Timeout,
	}, logger)
	sessions := auth.NewSessionFlow(users, issuer, registry, google, auth.SessionConfig{
		BcryptCost:      cfg.BcryptCost,
		ProviderTimeout: cfg.Google.Timeout,
	}, logger)

	// portfolios
	photos, err := photoStore(ctx, cfg)
	if err != nil {
		return err
	}
	portfolios := portfolio.NewService(repository.NewPortfolioRepo(db), photos, logger)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(observability.Recover(logger))
	e.Use(observability.RequestLogger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodPatch},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		ExposeHeaders:    []string{echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	router.RegisterRoutes(e, clock)
	router.RegisterAuth(e, handler.NewAuthHandler(registration, sessions),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger))
	router.RegisterPortfolios(e, handler.NewPortfolioHandler(portfolios, cache), issuer, cache.Middleware())

	if cfg.IsProduction() && cfg.KeepAlive.URL != "" {
		background("keepalive", keepalive.NewPinger(cfg.KeepAlive.URL, cfg.KeepAlive.Interval, nil, clock, logger).Run)
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}

func otpRepository(cfg config.Config, rdb *redis.Client, clock clockwork.Clock) (otp.Repository, error) {
	if cfg.OTP.Store == "redis" {
		if rdb == nil {
			return nil, errors.New("OTP_STORE=redis but redis is unavailable")
		}
		return otp.NewRedisRepository(rdb, "otp", clock), nil
	}
	return otp.NewMemoryRepository(), nil
}

func refreshRegistry(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger, background func(string, func(context.Context))) (refresh.Registry, error) {
	switch cfg.RefreshStore {
	case "redis":
		if rdb == nil {
			return nil, errors.New("REFRESH_STORE=redis but redis is unavailable")
		}
		return refresh.NewRedisRegistry(rdb, "refresh", cfg.RefreshTTL), nil
	case "mysql":
		tokens := repository.NewTokenRepo(db, cfg.RefreshTTL)
		background("refresh-purge", func(ctx context.Context) {
			t := time.NewTicker(tokenPurgeInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if n, err := tokens.PurgeExpired(ctx); err != nil {
						logger.Warn("refresh purge failed", "err", err)
					} else if n > 0 {
						logger.Info("expired refresh tokens removed", "removed", n)
					}
				}
			}
		})
		return tokens, nil
	}
	return refresh.NewMemoryRegistry(), nil
}

func otpNotifier(cfg config.Config, clock clockwork.Clock, logger *slog.Logger, background func(string, func(context.Context))) (auth.Notifier, error) {
	smtp := func() (*notify.SMTPSender, error) {
		s := cfg.Notify.SMTP
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			TLS:      s.TLS,
			Username: s.Username,
			Password: s.Password,
			From:     s.From,
			Timeout:  cfg.Notify.Timeout,
		}, cfg.OTP.TTL, logger)
	}

	switch cfg.Notify.Mode {
	case "smtp":
		return smtp()
	case "queue":
		if cfg.Notify.Consumer {
			sender, err := smtp()
			if err != nil {
				return nil, err
			}
			consumer := queue.NewConsumer(cfg.Notify.AMQPURL, cfg.Notify.Queue, sender, cfg.Notify.Timeout, logger)
			background("otp-consumer", func(ctx context.Context) {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("otp consumer stopped", "err", err)
				}
			})
		}
		pub := queue.NewPublisher(cfg.Notify.AMQPURL, cfg.Notify.Queue, cfg.Notify.Timeout, logger)
		return notify.NewQueueSender(pub, cfg.OTP.TTL, clock), nil
	}
	return notify.NewLogSender(logger), nil
}

func photoStore(ctx context.Context, cfg config.Config) (portfolio.PhotoStore, error) {
	if cfg.Photo.Store != "s3" {
		return portfolio.InlinePhotoStore{}, nil
	}
	p := cfg.Photo
	return portfolio.NewS3PhotoStore(ctx, portfolio.S3Config{
		Bucket:    p.Bucket,
		Region:    p.Region,
		Endpoint:  p.Endpoint,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
		PublicURL: p.PublicURL,
	})
}
