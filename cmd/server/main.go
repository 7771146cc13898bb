// Server runs the ONE-Go Security HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activityhandler "onego-security/backend/internal/activity/handler"
	activityrepo "onego-security/backend/internal/activity/repository"
	"onego-security/backend/internal/config"
	"onego-security/backend/internal/db"
	"onego-security/backend/internal/devotp"
	devotphandler "onego-security/backend/internal/devotp/handler"
	"onego-security/backend/internal/health"
	identityhandler "onego-security/backend/internal/identity/handler"
	identityrepo "onego-security/backend/internal/identity/repository"
	identityservice "onego-security/backend/internal/identity/service"
	"onego-security/backend/internal/logger"
	"onego-security/backend/internal/mail"
	"onego-security/backend/internal/metrics"
	passwordresetrepo "onego-security/backend/internal/passwordreset/repository"
	registrationhandler "onego-security/backend/internal/registration/handler"
	registrationrepo "onego-security/backend/internal/registration/repository"
	registrationservice "onego-security/backend/internal/registration/service"
	"onego-security/backend/internal/scan"
	scanhandler "onego-security/backend/internal/scan/handler"
	scanservice "onego-security/backend/internal/scan/service"
	"onego-security/backend/internal/security"
	"onego-security/backend/internal/server"
	"onego-security/backend/internal/server/middleware"
	sessionhandler "onego-security/backend/internal/session/handler"
	sessionrepo "onego-security/backend/internal/session/repository"
	"onego-security/backend/internal/sms"
	"onego-security/backend/internal/telemetry"
	oteltelemetry "onego-security/backend/internal/telemetry/otel"
	"onego-security/backend/internal/telemetry/producer"
	userhandler "onego-security/backend/internal/user/handler"
	userrepo "onego-security/backend/internal/user/repository"
	userservice "onego-security/backend/internal/user/service"
)

const (
	serviceName         = "onego-security-backend"
	shutdownTimeout     = 15 * time.Second
	healthRefreshPeriod = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger needs config; this is the only plain stderr line.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	devMode := cfg.OTPReturnToClient && !cfg.IsProduction()
	if devMode {
		log.Warn("DEV MODE: verification codes are returned to clients; never enable in production")
	}

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, logger.WithComponent(log, "otel"))
	if err != nil {
		return err
	}
	providers.SetGlobal()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	tokens, err := security.LoadTokenProvider(security.SigningConfig{
		PrivateKey: cfg.JWTPrivateKey,
		PublicKey:  cfg.JWTPublicKey,
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		TTL:        cfg.AccessTTL(),
	})
	if err != nil {
		return err
	}
	hasher := security.NewHasher(cfg.BcryptCost)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// Activity events fan out to Kafka (drained into Loki by cmd/worker) and OTel logs.
	emitters := telemetry.Multi{oteltelemetry.NewEventEmitter(providers.LoggerProvider)}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kp := producer.NewKafkaProducer(brokers, cfg.ActivityKafkaTopic)
		defer kp.Close()
		emitters = append(emitters, kp)
		log.Info("activity events published to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.ActivityKafkaTopic))
	}

	users := userrepo.NewPostgresRepository(conn)
	identities := identityrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	resets := passwordresetrepo.NewPostgresRepository(conn)
	registrations := registrationrepo.NewPostgresRepository(conn)
	activities := activityrepo.NewPostgresRepository(conn)

	activityLogger := activity.NewLogger(activities, emitters, middleware.ClientIPFromContext, logger.WithComponent(log, "activity")).
		WithSessionExtractor(func(ctx context.Context) string {
			id, _ := middleware.GetSessionID(ctx)
			return id
		})
	mailer := mail.NewMailer(mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))

	var devStore devotp.Store
	var devMemory *devotp.MemoryStore
	if devMode {
		devMemory = devotp.NewMemoryStore()
		devStore = devMemory
	}
	verifier, closeVerifier := newVerifier(cfg, devStore, log)
	defer closeVerifier()

	manager := registrationservice.NewManager(registrationservice.Deps{
		Repo:      registrations,
		Users:     users,
		Completer: registrationrepo.NewPostgresCompleter(conn),
		Mailer:    mailer,
		SMS:       verifier,
		Hasher:    hasher,
		Tokens:    tokens,
		DevOTP:    devStore,
		Metrics:   collector,
		Activity:  activityLogger,
		Log:       logger.WithComponent(log, "registration"),
	}, registrationservice.Options{
		SessionTTL:  cfg.RegistrationTTL(),
		EmailOTPTTL: cfg.EmailOTPTTL(),
		MaxAttempts: cfg.EmailOTPMaxAttempts,
		DevMode:     devMode,
	})

	authService := identityservice.NewAuthService(users, identities, sessions, resets,
		passwordresetrepo.NewPostgresConsumer(conn), hasher, tokens, mailer,
		activityLogger, logger.WithComponent(log, "auth"), cfg.PasswordResetTTL(), cfg.AppBaseURL)
	profileService := userservice.NewProfileService(users, identities, registrations, activityLogger, logger.WithComponent(log, "profile"))

	strength, err := scan.NewPasswordEvaluator(ctx)
	if err != nil {
		return err
	}
	scanService := scanservice.NewService(scanservice.Deps{
		URLs:     scan.NewVirusTotalClient(cfg.VirusTotalAPIKey, cfg.VirusTotalBaseURL),
		Files:    scan.NewMetaDefenderClient(cfg.MetaDefenderAPIKey, cfg.MetaDefenderBaseURL),
		Pages:    scan.NewZAPClient(cfg.ZAPAPIKey, cfg.ZAPBaseURL),
		Speed:    scan.NewSpeedTester(cfg.SpeedTestURL),
		Strength: strength,
		Users:    users,
		Metrics:  collector,
		Activity: activityLogger,
		Log:      logger.WithComponent(log, "scan"),
	})

	checker := health.NewChecker(conn, strength)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitAuthPerMin, log)
	defer rateLimiter.Stop()

	deps := server.Deps{
		Log:            log,
		CORSOrigin:     cfg.CORSAllowedOrigin,
		RateLimiter:    rateLimiter,
		Tokens:         tokens,
		Sessions:       sessions,
		Metrics:        collector,
		Gatherer:       reg,
		Emitter:        emitters,
		TracerProvider: providers.TracerProvider,
		Health:         checker,
		Registration:   registrationhandler.NewHandler(manager, log),
		Identity:       identityhandler.NewHandler(authService, log),
		Users:          userhandler.NewHandler(profileService, log),
		Activity:       activityhandler.NewHandler(activities, log),
		Scan:           scanhandler.NewHandler(scanService, log),
		SessionList:    sessionhandler.NewHandler(sessions, activityLogger, log),
	}
	if devMode {
		deps.DevOTP = devotphandler.NewHandler(devStore, registrations)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	healthSrv := health.NewGRPCServer(checker, log)
	grpcSrv := server.NewGRPCServer(healthSrv)

	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go healthSrv.Run(bgCtx, healthRefreshPeriod)
	if interval := cfg.RegistrationSweepInterval(); interval > 0 {
		go manager.RunSweeper(bgCtx, interval)
	}
	if devMemory != nil {
		go devMemory.RunPurger(bgCtx, time.Minute)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		go func() {
			log.Info("grpc health server listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("server failed", zap.Error(serveErr))
	}

	cancelBg()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// Give in-flight async activity emits time to finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return serveErr
}

// newVerifier picks the SMS provider. SMS Local codes live in Redis when REDIS_ADDR is set,
// otherwise in process memory.
func newVerifier(cfg *config.Config, dev devotp.Store, log *zap.Logger) (sms.Verifier, func()) {
	if cfg.SMSProvider == "twilio" {
		return sms.NewTwilioVerifier(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifyServiceSID, cfg.TwilioVerifyBaseURL), func() {}
	}
	var store sms.CodeStore = sms.NewMemoryCodeStore()
	closeFn := func() {}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		store = sms.NewRedisCodeStore(rdb)
		closeFn = func() { _ = rdb.Close() }
		log.Info("sms codes stored in redis", zap.String("addr", cfg.RedisAddr))
	} else {
		log.Warn("REDIS_ADDR not set; sms codes kept in memory (single instance only)")
	}
	v := sms.NewLocalVerifier(sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender), store)
	v.TTL = cfg.EmailOTPTTL()
	v.Dev = dev
	return v, closeFn
}
