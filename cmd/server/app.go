package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twmb/franz-go/pkg/kgo"

	authhandler "gatehouse/internal/auth/handler"
	authservice "gatehouse/internal/auth/service"
	"gatehouse/internal/authz"
	dirhandler "gatehouse/internal/directory/handler"
	dirservice "gatehouse/internal/directory/service"
	dirstore "gatehouse/internal/directory/store"
	gatehandler "gatehouse/internal/gatepass/handler"
	gatemetrics "gatehouse/internal/gatepass/metrics"
	gateservice "gatehouse/internal/gatepass/service"
	gatestore "gatehouse/internal/gatepass/store"
	jwttoken "gatehouse/internal/jwt_token"
	"gatehouse/internal/notify"
	"gatehouse/internal/occupancy"
	"gatehouse/internal/otp"
	"gatehouse/internal/photo"
	"gatehouse/internal/platform/config"
	"gatehouse/internal/platform/metrics"
	"gatehouse/internal/platform/postgres"
	"gatehouse/internal/platform/redis"
	"gatehouse/internal/sms"
	"gatehouse/pkg/platform/audit/publisher"
	auditmemory "gatehouse/pkg/platform/audit/store/memory"
	auditpostgres "gatehouse/pkg/platform/audit/store/postgres"
	authmw "gatehouse/pkg/platform/middleware/auth"
	"gatehouse/pkg/platform/middleware/logging"
	"gatehouse/pkg/platform/middleware/metadata"
	"gatehouse/pkg/platform/middleware/request"
	"gatehouse/pkg/platform/middleware/requesttime"
	txcontext "gatehouse/pkg/platform/tx"
)

const (
	auditAsyncBuffer    = 1024
	notifyCloseTimeout  = 10 * time.Second
	kafkaTopicPartition = 3
)

type app struct {
	router  http.Handler
	storage string
	health  health
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// stores groups the persistence choices made from configuration.
type stores struct {
	directory dirservice.Store
	visitors  gateservice.Store
	audit     publisher.Store
	tx        gateservice.TxRunner
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{health: health{}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := a.openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// Gate events commit with their transition; login and admin events are
	// buffered.
	gateAudit := publisher.NewPublisher(st.audit, publisher.WithLogger(log))
	opsAudit := publisher.NewPublisher(st.audit, publisher.WithLogger(log), publisher.WithAsyncBuffer(auditAsyncBuffer))
	a.closers = append(a.closers, opsAudit.Close)

	directory := dirservice.New(st.directory, dirservice.WithLogger(log), dirservice.WithAuditPublisher(opsAudit))

	dispatcher, err := a.buildNotifier(ctx, cfg.Notify, log)
	if err != nil {
		return nil, err
	}

	codes, err := a.buildCodeStore(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}

	var sender sms.Sender = sms.NewLogSender(log)
	if cfg.SMS.TwilioAccountSID != "" {
		sender = sms.NewTwilioSender(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.From)
	}

	photos, err := photo.NewFSStore(cfg.Photo.Dir, cfg.Photo.BaseURL)
	if err != nil {
		return nil, err
	}

	gateOpts := []gateservice.Option{
		gateservice.WithLogger(log),
		gateservice.WithMetrics(gatemetrics.New()),
		gateservice.WithAuditPublisher(gateAudit),
		gateservice.WithPhotoStore(photos),
		gateservice.WithGuestPassTTL(cfg.GatePass.GuestPassTTL),
	}
	if st.tx != nil {
		gateOpts = append(gateOpts, gateservice.WithTxRunner(st.tx))
	}
	if cfg.GatePass.SMSGuestCode {
		gateOpts = append(gateOpts, gateservice.WithCodeSender(sender))
	}
	gatepass := gateservice.New(st.visitors, occupancy.NewResolver(directory), directory, dispatcher, gateOpts...)

	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	login := authservice.New(directory, codes, sender, jwt,
		authservice.WithLogger(log),
		authservice.WithAuditPublisher(opsAudit),
		authservice.WithCodeTTL(cfg.Auth.LoginCodeTTL),
		authservice.WithTokenTTL(cfg.Auth.JWTTTL),
	)

	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("load authorization policy: %w", err)
	}
	capabilities := authz.NewMiddleware(enforcer, log)

	httpMetrics := metrics.New()
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(logging.Recover(log))
	r.Use(logging.AccessLog(log))
	r.Use(httpMetrics.Middleware)

	r.Get("/healthz", a.health.handler(a.storage))
	r.Handle("/metrics", metrics.Handler())

	authhandler.New(login, log, cfg.RateLimit.LoginPerMinute).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwt), directory, log))
		dirhandler.New(directory, capabilities, log).Register(r)
		gatehandler.New(gatepass, capabilities, log,
			gatehandler.WithRedeemRateLimit(cfg.RateLimit.VerifyOTPPerMinute, time.Minute),
		).Register(r)
		r.Handle(cfg.Photo.BaseURL+"/*", http.StripPrefix(cfg.Photo.BaseURL, http.FileServer(http.Dir(photos.Dir()))))
	})

	a.router = r
	return a, nil
}

// openStores picks Postgres when a database URL is configured and seeded
// in-memory stores otherwise.
func (a *app) openStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (stores, error) {
	if cfg.Database.URL == "" {
		a.storage = "memory"
		dir := dirstore.NewInMemory()
		if err := dirstore.SeedDemo(ctx, dir, time.Now().Add(-24*time.Hour)); err != nil {
			return stores{}, fmt.Errorf("seed demo directory: %w", err)
		}
		log.Warn("no database configured, using seeded in-memory stores", "society_id", dirstore.DemoSociety.String())
		return stores{
			directory: dir,
			visitors:  gatestore.NewInMemory(),
			audit:     auditmemory.NewInMemoryStore(),
		}, nil
	}

	a.storage = "postgres"
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return stores{}, err
	}
	a.closers = append(a.closers, func() { closeDB(db, log) })
	a.health["postgres"] = db.PingContext
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return stores{}, err
		}
	}
	return stores{
		directory: dirstore.NewPostgres(db),
		visitors:  gatestore.NewPostgres(db),
		audit:     auditpostgres.New(db),
		tx:        txcontext.NewRunner(db),
	}, nil
}

// buildNotifier returns the fire-and-forget push dispatcher over Kafka, or
// over the log when no brokers are configured.
func (a *app) buildNotifier(ctx context.Context, cfg config.Notify, log *slog.Logger) (*notify.Dispatcher, error) {
	var gateway notify.Gateway = notify.NewLogGateway(log)
	if len(cfg.KafkaBrokers) > 0 {
		client, err := notify.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { closeKafka(client) })
		if err := notify.EnsureTopic(ctx, client, cfg.KafkaTopic, kafkaTopicPartition); err != nil {
			log.Warn("could not ensure push topic", "topic", cfg.KafkaTopic, "error", err)
		}
		gateway = notify.NewKafkaGateway(client, cfg.KafkaTopic)
	}
	gateway = notify.NewBreakerGateway(gateway, notify.BreakerSettings{
		Name:             "push-gateway",
		FailureThreshold: cfg.BreakerFailures,
		Cooldown:         cfg.BreakerCooldown,
	}, log)

	dispatcher, err := notify.NewDispatcher(gateway, cfg.Workers, log,
		notify.WithMetrics(notify.NewMetrics()),
		notify.WithDispatchTimeout(cfg.DispatchTimeout),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := dispatcher.Close(notifyCloseTimeout); err != nil {
			log.Warn("notification dispatcher did not drain", "error", err)
		}
	})
	return dispatcher, nil
}

func (a *app) buildCodeStore(ctx context.Context, cfg config.Redis, log *slog.Logger) (otp.Store, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return otp.NewInMemory(), nil
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis", "error", err)
		}
	})
	a.health["redis"] = client.Health
	return otp.NewRedis(client.Client), nil
}

func closeDB(db *sql.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn("failed to close database", "error", err)
	}
}

func closeKafka(client *kgo.Client) {
	client.Close()
}
