package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"medblock/internal/audit"
	auditstore "medblock/internal/audit/store"
	"medblock/internal/blob"
	"medblock/internal/consent/handler"
	consentservice "medblock/internal/consent/service"
	consentstore "medblock/internal/consent/store"
	jwttoken "medblock/internal/jwt_token"
	"medblock/internal/keywrap"
	"medblock/internal/keywrap/keystore"
	"medblock/internal/keywrap/transit"
	"medblock/internal/ledger"
	orgservice "medblock/internal/org/service"
	orgstore "medblock/internal/org/store"
	"medblock/internal/platform/config"
	"medblock/internal/platform/httpserver"
	"medblock/internal/platform/kafka"
	"medblock/internal/platform/kafka/consumer"
	"medblock/internal/platform/kafka/producer"
	"medblock/internal/platform/logger"
	"medblock/internal/platform/metrics"
	"medblock/internal/platform/postgres"
	redisclient "medblock/internal/platform/redis"
	"medblock/internal/platform/tracing"
	"medblock/internal/records"
	"medblock/internal/rewrap"
	rewrapstore "medblock/internal/rewrap/store"
	"medblock/pkg/platform/circuit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("medblock stopped with error", "error", err)
		os.Exit(1)
	}
}

// app is the wired engine. Optional backends fall back to their in-memory
// forms when their configuration is empty.
type app struct {
	router     http.Handler
	consent    *consentservice.Service
	consumer   *consumer.Consumer
	ledgerName string
	postgres   bool
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	health := newHealthChecks()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	})

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if st.db != nil {
		a.postgres = true
		a.closers = append(a.closers, func() { _ = st.db.Close() })
		health.add("postgres", func(ctx context.Context) error { return postgres.Health(ctx, st.db) })
	}

	keys, closeKeys, err := buildKeyProvider(cfg, log, m)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeKeys)

	sink := audit.NewSink(st.audit,
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithAsyncBuffer(cfg.Audit.BufferSize),
	)
	a.closers = append(a.closers, func() { _ = sink.Close() })

	orgs := orgservice.New(st.orgs, orgservice.WithLogger(log))
	if cfg.Orgs.SeedDefaults {
		n, err := orgstore.SeedDefaults(ctx, st.orgs, time.Now())
		if err != nil {
			return nil, fmt.Errorf("seed organizations: %w", err)
		}
		if n > 0 {
			log.Info("seeded default organizations", "created", n)
		}
	}

	deduper, err := buildDeduper(ctx, cfg.Redis, health)
	if err != nil {
		return nil, err
	}

	// The dispatcher reads record metadata through the consent service,
	// which mirrors to the ledger that feeds the dispatcher. The in-process
	// ledger therefore resolves the dispatcher late.
	var dispatcher *rewrap.Dispatcher
	var ledgerClient ledger.Client
	if len(cfg.Kafka.Brokers) > 0 {
		if cfg.Kafka.CreateTopics {
			if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, 3, 1, cfg.Kafka.TransactionsTopic, cfg.Kafka.EventsTopic); err != nil {
				return nil, err
			}
		}
		prod, err := producer.New(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prod.Close)
		health.add("kafka", prod.Health)

		opts := []ledger.KafkaOption{ledger.WithProduceTimeout(cfg.Kafka.ProduceTimeout)}
		if cfg.Kafka.EchoEvents {
			opts = append(opts, ledger.WithEventEcho(cfg.Kafka.EventsTopic))
		}
		ledgerClient = ledger.NewKafkaClient(prod, cfg.Kafka.TransactionsTopic, opts...)
	} else {
		ledgerClient = ledger.NewLocalClient(func(ctx context.Context, ev ledger.Event) error {
			return dispatcher.Handle(ctx, ev)
		})
	}
	a.ledgerName = ledgerClient.Name()

	consentOpts := []consentservice.Option{
		consentservice.WithLedger(ledgerClient),
		consentservice.WithAuditRecorder(sink),
		consentservice.WithLogger(log),
		consentservice.WithMetrics(m),
		consentservice.WithOrgDirectory(orgs),
	}
	if st.tx != nil {
		consentOpts = append(consentOpts, consentservice.WithTx(st.tx))
	}
	a.consent = consentservice.New(st.consent, keys, consentOpts...)

	dispatcher = rewrap.NewDispatcher(a.consent, keys, st.keys,
		rewrap.WithDeduper(deduper),
		rewrap.WithAuditRecorder(sink),
		rewrap.WithLogger(log),
		rewrap.WithMetrics(m),
	)

	if len(cfg.Kafka.Brokers) > 0 {
		a.consumer, err = consumer.New(consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			Group:   cfg.Kafka.ConsumerGroup,
			Topics:  []string{cfg.Kafka.EventsTopic},
		}, rewrap.NewRouter(dispatcher, log), consumer.WithLogger(log))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.consumer.Close)
	}

	blobs, err := buildBlobStore(ctx, cfg.Blob, health)
	if err != nil {
		return nil, err
	}
	recordSvc := records.New(a.consent, keys, blobs,
		records.WithAuditRecorder(sink),
		records.WithLogger(log),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
	router := chi.NewRouter()
	router.Get("/healthz", health.handler)
	router.Handle("/metrics", promhttp.Handler())
	handler.New(handler.Services{
		Consent: a.consent,
		Records: recordSvc,
		Audit:   sink,
		Keys:    dispatcher,
		Orgs:    orgs,
	}, log, jwttoken.NewJWTServiceAdapter(jwtService),
		handler.WithAdminToken(cfg.Server.AdminToken),
		handler.WithLatencyObserver(m),
		handler.WithRequestTimeout(cfg.Server.RequestTimeout),
	).Register(router)
	a.router = otelhttp.NewHandler(router, "medblock",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)

	return a, nil
}

// run serves the app until ctx ends or a component fails.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.UsesDevSecrets() {
		log.Warn("development secrets in use; set JWT_SIGNING_KEY and KEYSTORE_MASTER_SECRET")
	}
	a, err := buildApp(ctx, cfg, log, metrics.New())
	if err != nil {
		return err
	}
	defer a.close()

	srv := httpserver.New(cfg.Server.Addr, a.router)
	g, gctx := errgroup.WithContext(ctx)

	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gctx) })
	}

	g.Go(func() error {
		a.consent.RunExpirySweep(gctx, cfg.Sweep.Interval)
		return nil
	})

	g.Go(func() error {
		log.Info("medblock listening",
			"addr", cfg.Server.Addr,
			"ledger", a.ledgerName,
			"postgres", a.postgres,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type stores struct {
	db      *sql.DB
	consent consentservice.Store
	tx      consentservice.ConsentStoreTx
	audit   audit.Store
	keys    rewrap.KeyStore
	orgs    orgservice.Store
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (stores, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return stores{
			consent: consentstore.NewInMemory(),
			audit:   auditstore.NewInMemory(),
			keys:    rewrapstore.NewInMemory(),
			orgs:    orgstore.NewInMemory(),
		}, nil
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(cfg.URL, log); err != nil {
			return stores{}, err
		}
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	consent := consentstore.NewPostgres(db)
	return stores{
		db:      db,
		consent: consent,
		tx:      newConsentPostgresTx(db, consent),
		audit:   auditstore.NewPostgres(db),
		keys:    rewrapstore.NewPostgres(db),
		orgs:    orgstore.NewPostgres(db),
	}, nil
}

// buildKeyProvider assembles local RSA wrapping, optionally fronted by the
// remote KMS behind a circuit breaker.
func buildKeyProvider(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*keywrap.Provider, func(), error) {
	sealer, err := keystore.NewSealer([]byte(cfg.Keystore.MasterSecret))
	if err != nil {
		return nil, nil, err
	}

	var ks keystore.Store
	closeFn := func() {}
	if cfg.Keystore.Dir != "" {
		b, err := keystore.OpenBadger(cfg.Keystore.Dir, sealer)
		if err != nil {
			return nil, nil, err
		}
		ks = b
		closeFn = func() { _ = b.Close() }
	} else {
		log.Warn("KEYSTORE_DIR not set; private keys are kept in memory and lost on restart")
		ks = keystore.NewInMemory()
	}

	local := keywrap.NewLocal(ks, keywrap.WithKeyBits(cfg.Keystore.RSABits))
	opts := []keywrap.Option{keywrap.WithLogger(log), keywrap.WithMetrics(m)}
	if cfg.KMS.URL != "" {
		remote := transit.New(cfg.KMS.URL,
			transit.WithToken(cfg.KMS.Token),
			transit.WithHTTPClient(&http.Client{Timeout: cfg.KMS.Timeout}),
		)
		opts = append(opts,
			keywrap.WithRemote(remote),
			keywrap.WithRemoteTimeout(cfg.KMS.Timeout),
			keywrap.WithBreaker(circuit.New("kms",
				circuit.WithFailureThreshold(cfg.KMS.FailureThreshold),
				circuit.WithCooldown(cfg.KMS.Cooldown),
			)),
		)
	}
	return keywrap.NewProvider(local, opts...), closeFn, nil
}

func buildDeduper(ctx context.Context, cfg config.RedisConfig, health *healthChecks) (rewrap.Deduper, error) {
	if cfg.URL == "" {
		return rewrap.NewInMemoryDeduper(), nil
	}
	client, err := redisclient.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	health.add("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return rewrap.NewRedisDeduper(client, cfg.DedupeTTL, cfg.ClaimLease), nil
}

func buildBlobStore(ctx context.Context, cfg config.BlobConfig, health *healthChecks) (blob.Store, error) {
	if cfg.Endpoint == "" {
		return blob.NewInMemory(cfg.Bucket), nil
	}
	store, err := blob.NewMinIO(ctx, cfg)
	if err != nil {
		return nil, err
	}
	health.add("minio", store.Health)
	return store, nil
}

const (
	healthTimeout          = 2 * time.Second
	tracingShutdownTimeout = 5 * time.Second
)
