package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/conference-repeater/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
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

// SeriesServiceDeps bundles the collaborators for a SeriesService under test.
type SeriesServiceDeps struct {
	Series   application.SeriesStore
	Rooms    application.RoomStore
	Dispatch application.NotificationDispatch
	Logger   *slog.Logger
}

// NewSeriesService builds a SeriesService wired to the factory's clock and
// identifier generator.
func (f *ServiceFactory) NewSeriesService(deps SeriesServiceDeps) *application.SeriesService {
	return application.NewSeriesServiceWithLogger(
		deps.Series,
		deps.Rooms,
		deps.Dispatch,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// NewMaterializer builds a Materializer wired to the factory's clock and
// identifier generator.
func (f *ServiceFactory) NewMaterializer(rooms application.RoomStore, logger *slog.Logger) *application.Materializer {
	return application.NewMaterializerWithLogger(rooms, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), logger)
}
