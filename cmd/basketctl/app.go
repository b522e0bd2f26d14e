package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"basket-trading/config"
	"basket-trading/internal/broker"
	"basket-trading/internal/broker/angelone"
	"basket-trading/internal/broker/factory"
	"basket-trading/internal/credentials"
	"basket-trading/internal/execution"
	"basket-trading/internal/metrics"
	"basket-trading/internal/notification"
	"basket-trading/internal/portfolio"
	redisstore "basket-trading/internal/store/redis"
	sqlitestore "basket-trading/internal/store/sqlite"
	"basket-trading/internal/tradeerr"
)

// app holds everything a command may touch. Redis and alert channels are
// optional; the catalog store and journal are always opened. The broker is
// nil until connect.
type app struct {
	cfg    *config.Config
	policy *config.PolicyFile
	log    *slog.Logger

	brokerType broker.Type
	broker     broker.Broker
	box        *credentials.SecretBox
	sessions   sessionStore

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	catalog   *sqlitestore.Store
	journal   *execution.Journal
	redis     *redisstore.Store
	publisher *redisstore.ReportPublisher
	alerts    *notification.BatchAlerts

	closers []func() error
}

func newApp(cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.brokerType, err = factory.ParseType(cfg.Broker); err != nil {
		return nil, err
	}
	if a.policy, err = config.LoadPolicy(cfg.PolicyPath); err != nil {
		return nil, err
	}
	if err = a.policy.ApplyHolidays(); err != nil {
		return nil, err
	}
	if cfg.CredentialsKey != "" {
		if a.box, err = credentials.NewSecretBox(cfg.CredentialsKey); err != nil {
			return nil, err
		}
	}
	a.sessions = newSessionStore(cfg.SQLitePath, a.brokerType, a.box)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)
	a.health = metrics.NewHealthStatus()

	if err = os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
		return nil, err
	}
	if a.catalog, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath}); err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.closers = append(a.closers, a.catalog.Close)
	a.health.Register("sqlite", metrics.SQLiteProbe(a.catalog.DB()))

	if a.journal, err = execution.NewJournal(cfg.SQLitePath); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	a.closers = append(a.closers, a.journal.Close)

	if cfg.RedisAddr != "" {
		a.openRedis()
	}
	a.alerts = notification.NewBatchAlerts(a.notifier())
	return a, nil
}

// connect builds the broker adapter on first use. Commands that only read
// local state never need valid credentials.
func (a *app) connect(ctx context.Context) error {
	if a.broker != nil {
		return nil
	}
	b, err := a.newBroker(ctx)
	if err != nil {
		return err
	}
	a.broker = b
	return nil
}

// openRedis connects the snapshot store and report publisher. Redis being
// down only disables them.
func (a *app) openRedis() {
	store, err := redisstore.New(redisstore.Config{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err != nil {
		a.log.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		return
	}
	a.redis = store
	a.closers = append(a.closers, store.Close)
	a.health.Register("redis", metrics.RedisProbe(store.Client()))

	cb := redisstore.NewCircuitBreaker(3, 30*time.Second)
	cb.OnStateChange = func(_, to redisstore.State) { a.metrics.BreakerStateChanged(int(to)) }
	a.publisher = redisstore.NewReportPublisher(store, cb, 0)
	a.publisher.OnBuffer = func(n int) { a.metrics.ReportsPending.Set(float64(n)) }
}

func (a *app) notifier() notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(a.log)}
	if a.cfg.WebhookURL != "" {
		w := notification.NewWebhookNotifier(a.cfg.WebhookURL)
		a.closers = append(a.closers, w.Close)
		n = append(n, w)
	}
	if a.cfg.TelegramToken != "" {
		t := notification.NewTelegramNotifier(a.cfg.TelegramToken, a.cfg.TelegramChatID, "")
		a.closers = append(a.closers, t.Close)
		n = append(n, t)
	}
	return n
}

func (a *app) credentialProvider() factory.CredentialProvider {
	if a.cfg.CredentialsFile != "" {
		return credentials.FileProvider{Path: a.cfg.CredentialsFile, Decrypter: a.box}
	}
	return credentials.EnvProvider{}
}

func (a *app) newBroker(ctx context.Context) (broker.Broker, error) {
	opts := []factory.Option{
		factory.WithLogger(a.log),
		factory.WithMiddleware(a.metrics.InstrumentBroker),
	}
	if a.brokerType == broker.AngelOne {
		// Order placement needs symbol tokens; seed them from the last stored
		// catalog so a download is only needed after a refresh.
		rows, err := a.catalog.All(ctx, broker.AngelOne)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			opts = append(opts, factory.WithAngelOptions(angelone.WithCatalog(rows)))
		}
	}
	b, err := factory.New(a.credentialProvider(), opts...).FromProvider(ctx, a.brokerType)
	if err != nil {
		return nil, err
	}
	if c, ok := adapter(b).(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	return b, nil
}

// ensureSession restores a stored session, or logs in unattended when the
// broker's challenge can be answered from credentials (Angel One TOTP seed).
func (a *app) ensureSession(ctx context.Context) error {
	sess, ok, err := a.sessions.load(time.Now())
	if err != nil {
		return err
	}
	if ok && restoreSession(a.broker, sess) {
		a.log.Debug("session restored", slog.String("user_id", sess.UserID), slog.Time("expires_at", sess.ExpiresAt))
		return nil
	}

	req, err := factory.GetRequirements(a.brokerType)
	if err != nil {
		return err
	}
	if req.AuthFlow != factory.AuthChallenge {
		return tradeerr.WithBroker(tradeerr.New(tradeerr.ErrAuth, "session",
			"no valid session; open `basketctl login-url` and run `basketctl session -request-token ...`"),
			string(a.brokerType))
	}
	sess, err = a.broker.CreateSession(ctx, broker.AuthArtifact{})
	if err != nil {
		return err
	}
	return a.sessions.save(sess)
}

// service builds the portfolio service with every available report sink.
func (a *app) service(dryRun bool, anyTime bool) (*portfolio.Service, error) {
	policy := a.policy.Policy
	if policy.OrdersPerSecond == 0 {
		req, err := factory.GetRequirements(a.brokerType)
		if err != nil {
			return nil, err
		}
		policy.OrdersPerSecond = req.OrdersPerSecond
	}

	sinks := []portfolio.ReportSink{a.journal, a.metrics, a.alerts}
	if a.publisher != nil {
		sinks = append(sinks, a.publisher)
	}
	opts := []portfolio.Option{
		portfolio.WithLogger(a.log),
		portfolio.WithSinks(sinks...),
	}
	if dryRun {
		opts = append(opts, portfolio.WithDryRun(a.cfg.SlippageBps, anyTime))
	}
	return portfolio.New(a.broker, policy, opts...), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
