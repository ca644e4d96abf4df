package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/config"
	httptransport "github.com/happiestt-talha/pentutor-api/internal/http"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/mail"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/meeting"
	"github.com/happiestt-talha/pentutor-api/internal/integrations/notify"
	"github.com/happiestt-talha/pentutor-api/internal/jobs"
	"github.com/happiestt-talha/pentutor-api/internal/outbox"
	"github.com/happiestt-talha/pentutor-api/internal/persistence/sqlstore"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

const integrationTimeout = 10 * time.Second

// app is the wired service: the HTTP handler and the background jobs over
// one store.
type app struct {
	store   *sqlstore.Store
	handler http.Handler
	runner  *jobs.Runner
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	storeConfig := sqlstore.DefaultConfig(sqlstore.Driver(cfg.Database.Driver), cfg.Database.DSN)
	store, err := sqlstore.Open(ctx, storeConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	sinks, err := newSinks(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engine := recurrence.NewEngine(cfg.Location())
	idGenerator := uuid.NewString
	now := time.Now

	scheduleService := application.NewScheduleServiceWithLogger(store, engine, idGenerator, now, logger)
	materializer := application.NewMaterializerWithLogger(store, engine, idGenerator, now, logger)
	subscriptionService := application.NewSubscriptionServiceWithLogger(store, engine, idGenerator, now, logger)
	gate := application.NewAccessGate(store, engine, now)
	attendanceService := application.NewAttendanceServiceWithLogger(store, gate, sinks.Rooms, engine, application.AttendancePolicy{
		MissedGrace:  cfg.Jobs.MissedGrace,
		ReminderLead: cfg.Jobs.ReminderLead,
		Retention:    cfg.Jobs.RetentionWindow,
	}, idGenerator, now, logger)
	rescheduleService := application.NewRescheduleServiceWithLogger(store, idGenerator, now, logger)
	analyticsService := application.NewAnalyticsServiceWithLogger(store, engine, application.AnalyticsCacheConfig{
		TTL:        cfg.AnalyticsCacheTTL,
		MaxEntries: cfg.AnalyticsCacheSize,
	}, idGenerator, now, logger)
	authService := application.NewAuthServiceWithLogger([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL, now, logger)

	policy := outbox.DefaultPolicy()
	policy.BatchSize = cfg.Jobs.OutboxBatch
	dispatcher := outbox.NewDispatcher(store, sinks, policy, now, logger)

	runner, err := jobs.NewRunner(logger, backgroundJobs(cfg.Jobs, materializer, subscriptionService, attendanceService, analyticsService, dispatcher)...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to configure jobs: %w", err)
	}

	routes := httptransport.RouterConfig{
		Auth:          httptransport.NewAuthHandler(authService, logger),
		Schedules:     httptransport.NewScheduleHandler(scheduleService, logger),
		Subscriptions: httptransport.NewSubscriptionHandler(subscriptionService, logger),
		Sessions:      httptransport.NewSessionHandler(attendanceService, logger),
		Reschedules:   httptransport.NewRescheduleHandler(rescheduleService, logger),
		Analytics:     httptransport.NewAnalyticsHandler(analyticsService, logger),
		Admin:         httptransport.NewAdminHandler(materializer, runner, cfg.Jobs.MaterializeWindowDays, logger),
		Health:        store,
		Authenticate:  httptransport.RequireBearer(authService, logger),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	}
	if secret := cfg.Integrations.MeetingWebhookSecret; secret != "" {
		routes.Webhooks = httptransport.NewWebhookHandler(attendanceService, secret, logger)
	} else {
		logger.Warn("meeting webhook disabled: no signing secret configured")
	}

	return &app{store: store, handler: httptransport.NewRouter(routes), runner: runner}, nil
}

// backgroundJobs lists the periodic work; the names are what
// POST /admin/jobs/{name} accepts.
func backgroundJobs(
	cfg config.JobsConfig,
	materializer *application.Materializer,
	subscriptions *application.SubscriptionService,
	attendance *application.AttendanceService,
	analytics *application.AnalyticsService,
	dispatcher *outbox.Dispatcher,
) []jobs.Job {
	return []jobs.Job{
		{
			Name:       "materialize",
			Interval:   cfg.MaterializeInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := materializer.Materialize(ctx, cfg.MaterializeWindowDays)
				return err
			},
		},
		{
			Name:     "sweep_missed",
			Interval: cfg.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := attendance.SweepMissed(ctx)
				return err
			},
		},
		{
			Name:       "expire_subscriptions",
			Interval:   cfg.ExpiryInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := subscriptions.ExpireLapsed(ctx)
				return err
			},
		},
		{
			Name:     "send_reminders",
			Interval: cfg.ReminderInterval,
			Run: func(ctx context.Context) error {
				_, err := attendance.SendReminders(ctx)
				return err
			},
		},
		{
			Name:     "cleanup_retention",
			Interval: cfg.CleanupInterval,
			Run: func(ctx context.Context) error {
				_, err := attendance.CleanupRetention(ctx)
				return err
			},
		},
		{
			Name:     "monthly_report",
			Interval: cfg.ReportInterval,
			Run: func(ctx context.Context) error {
				_, err := analytics.SendMonthlyReport(ctx)
				return err
			},
		},
		{
			Name:     "outbox_dispatch",
			Interval: cfg.OutboxInterval,
			Run:      dispatcher.Run,
		},
	}
}

// newSinks picks each outward collaborator: the configured service when its
// settings are present, a local or log-backed fallback otherwise.
func newSinks(cfg config.Config, logger *slog.Logger) (outbox.Sinks, error) {
	integrations := cfg.Integrations
	client := &http.Client{Timeout: integrationTimeout}

	var sinks outbox.Sinks
	if integrations.MeetingServiceURL != "" {
		rooms, err := meeting.NewClient(integrations.MeetingServiceURL, integrations.MeetingServiceToken, client, logger)
		if err != nil {
			return outbox.Sinks{}, fmt.Errorf("failed to configure meeting service: %w", err)
		}
		sinks.Rooms = rooms
	} else {
		sinks.Rooms = meeting.NewLocal(integrations.MeetingLocalBaseURL, logger)
	}

	var notifier outbox.Notifier = notify.NewLog(logger)
	if integrations.NotifyWebhookURL != "" {
		notifier = notify.NewWebhook(integrations.NotifyWebhookURL, client)
	}
	sinks.Notifier = notifier

	admin := notify.Channels{}
	if integrations.TelegramBotToken != "" {
		telegram, err := notify.NewTelegramChannel(integrations.TelegramBotToken, integrations.TelegramAdminChatID, "", logger)
		if err != nil {
			return outbox.Sinks{}, err
		}
		admin = append(admin, telegram)
	}
	if len(cfg.AdminIDs) > 0 {
		directory := notify.StaticDirectory{string(application.RoleAdmin): cfg.AdminIDs}
		admin = append(admin, notify.NewRoleChannel(directory, notifier, string(application.RoleAdmin)))
	}
	if len(admin) == 0 {
		admin = append(admin, notify.NewLog(logger))
	}
	sinks.Admin = admin

	if integrations.SMTPAddr != "" {
		addresses, err := mail.ParseAddressBook(integrations.UserEmails)
		if err != nil {
			return outbox.Sinks{}, fmt.Errorf("failed to parse %sUSER_EMAILS: %w", config.Prefix, err)
		}
		sinks.Mailer = mail.NewSMTP(mail.SMTPConfig{
			Addr:     integrations.SMTPAddr,
			Username: integrations.SMTPUsername,
			Password: integrations.SMTPPassword,
			From:     integrations.SMTPFrom,
		}, addresses, logger)
	} else {
		sinks.Mailer = mail.NewLog(logger)
	}

	return sinks, nil
}
