package relay

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on subject and mediator activity.
// The subject argument is the name configured with Name, or empty.
type MetricsProvider interface {
	// OnNotify is called after every notification pass.
	// Observers is the size of the snapshot that was notified.
	OnNotify(subject string, observers int, duration time.Duration)

	// OnObserverPanic is called when an observer panic is recovered.
	OnObserverPanic(subject string)

	// OnSourceRegistered is called when a Mediator subscribes to a source.
	OnSourceRegistered(subject string)

	// OnSourceUnregistered is called when a Mediator detaches from a source.
	OnSourceUnregistered(subject string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnNotify(_ string, _ int, _ time.Duration) {}
func (NoOpMetricsProvider) OnObserverPanic(_ string)                 {}
func (NoOpMetricsProvider) OnSourceRegistered(_ string)              {}
func (NoOpMetricsProvider) OnSourceUnregistered(_ string)            {}
