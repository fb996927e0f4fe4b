/*
Package relay provides observable single-value holders and the plumbing to
compose them.

A Subject holds the latest value of some type and notifies registered
observers, synchronously and in registration order, every time a new value is
set. relay is not a stream library: there is no buffering, completion or
backpressure, only "the current value" and the observers that care about it.

# Basic Usage

Create a Cell, register observers and set values:

	settings := relay.NewCell[Settings]()

	obs := settings.RegisterObserver(relay.Func(func(s Settings) {
	    log.Printf("port is now %d", s.Port)
	}))

	settings.SetValue(Settings{Port: 8080}) // observer runs before SetValue returns

	current, err := settings.Value() // relay.ErrNoValue before the first SetValue
	settings.UnregisterObserver(obs)

Observers are compared by identity. Keep the value returned by
RegisterObserver to unregister later. Observers must be comparable types,
typically pointers; Func returns a new pointer adapter on every call.

# Composition

A Mediator is a Cell that subscribes to other subjects:

	merged := relay.NewMediator[int]()
	merged.Forward(primary)
	merged.Forward(secondary)

	// later
	if err := merged.UnregisterSource(secondary); err != nil {
	    // errors.Is(err, relay.ErrSourceNotFound)
	}

Map, SwitchMap and Merge are built on Mediator:

	ports := relay.Map(settings, func(s Settings) int { return s.Port })

	active := relay.SwitchMap(useCanary, func(canary bool) relay.Subject[Settings] {
	    if canary {
	        return canarySettings
	    }
	    return stableSettings
	})

Upstream subjects hold references to a Mediator's source observers. Call
Close or UnregisterSource before dropping a Mediator.

# Feeds

A Feed keeps a MutableSubject in sync with an external source. A Watcher
emits raw bytes, the Feed decodes them with a Codec, validates values that
implement Validator and publishes the result:

	feed := relay.NewFeed[Settings](file.New("/etc/app/settings.yaml"), settings).
	    Codec(relay.YAMLCodec{}).
	    Debounce(200 * time.Millisecond)

	if err := feed.Start(ctx); err != nil {
	    log.Printf("initial settings rejected: %v", err)
	}

Rejected payloads never reach the subject; the Feed reports them through
LastError, its State and the capitan signals in this package.

# Observability

Every subject and feed emits capitan signals (see signals.go) and accepts an
optional MetricsProvider. The pkg/metrics package provides a Prometheus
implementation.
*/
package relay
