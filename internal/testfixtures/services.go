package testfixtures

import (
	"log/slog"
	"time"

	"github.com/happiestt-talha/pentutor-api/internal/application"
	"github.com/happiestt-talha/pentutor-api/internal/persistence"
	"github.com/happiestt-talha/pentutor-api/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *recurrence.Engine
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Engine:      recurrence.NewEngine(time.UTC),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Engine == nil {
		factory.Engine = recurrence.NewEngine(time.UTC)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithEngine overrides the recurrence engine, e.g. to use another time zone.
func WithEngine(engine *recurrence.Engine) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Engine = engine
	}
}

// WithLogger routes service logs to logger.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewScheduleService builds a schedule service over store.
func (f *ServiceFactory) NewScheduleService(store persistence.Store) *application.ScheduleService {
	return application.NewScheduleServiceWithLogger(store, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewMaterializer builds a materializer over store.
func (f *ServiceFactory) NewMaterializer(store persistence.Store) *application.Materializer {
	return application.NewMaterializerWithLogger(store, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewSubscriptionService builds a subscription service over store.
func (f *ServiceFactory) NewSubscriptionService(store persistence.Store) *application.SubscriptionService {
	return application.NewSubscriptionServiceWithLogger(store, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewAccessGate builds an access gate over subscriptions.
func (f *ServiceFactory) NewAccessGate(subscriptions persistence.SubscriptionRepository) *application.AccessGate {
	return application.NewAccessGate(subscriptions, f.Engine, f.Clock.NowFunc())
}

// AttendanceServiceDeps captures dependencies for constructing an attendance service.
type AttendanceServiceDeps struct {
	Store  persistence.Store
	Rooms  application.MeetingRooms
	Policy application.AttendancePolicy
}

// NewAttendanceService builds an attendance service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	return application.NewAttendanceServiceWithLogger(
		deps.Store,
		f.NewAccessGate(deps.Store),
		deps.Rooms,
		f.Engine,
		deps.Policy,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// NewRescheduleService builds a reschedule service over store.
func (f *ServiceFactory) NewRescheduleService(store persistence.Store) *application.RescheduleService {
	return application.NewRescheduleServiceWithLogger(store, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewAnalyticsService builds an analytics service over store.
func (f *ServiceFactory) NewAnalyticsService(store persistence.Store, cache application.AnalyticsCacheConfig) *application.AnalyticsService {
	return application.NewAnalyticsServiceWithLogger(store, f.Engine, cache, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewAuthService builds an auth service signing with secret.
func (f *ServiceFactory) NewAuthService(secret string) *application.AuthService {
	return application.NewAuthServiceWithLogger([]byte(secret), "", time.Hour, f.Clock.NowFunc(), f.Logger)
}
