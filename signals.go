package relay

import "github.com/zoobzio/capitan"

// Notification signals.
var (
	// ObserverPanicked is emitted when an observer panics during a
	// notification pass. The panic is recovered and the pass continues.
	ObserverPanicked = capitan.NewSignal(
		"relay.observer.panicked",
		"Observer panicked during notification",
	)
)

// Mediator source signals.
var (
	// SourceRegistered is emitted when a Mediator subscribes to a new source.
	SourceRegistered = capitan.NewSignal(
		"relay.source.registered",
		"Mediator source registered",
	)

	// SourceUnregistered is emitted when a Mediator detaches from a source.
	SourceUnregistered = capitan.NewSignal(
		"relay.source.unregistered",
		"Mediator source unregistered",
	)

	// SourceNotFound is emitted when unregistering a source that the
	// Mediator does not know about.
	SourceNotFound = capitan.NewSignal(
		"relay.source.notfound",
		"Mediator source not found",
	)

	// SwitchChanged is emitted when a SwitchMap moves to a new delegate.
	SwitchChanged = capitan.NewSignal(
		"relay.switch.changed",
		"SwitchMap delegate changed",
	)
)

// Feed lifecycle signals.
var (
	// FeedStarted is emitted when a Feed begins watching.
	FeedStarted = capitan.NewSignal(
		"relay.feed.started",
		"Feed watching started",
	)

	// FeedStopped is emitted when a Feed stops watching.
	FeedStopped = capitan.NewSignal(
		"relay.feed.stopped",
		"Feed watching stopped",
	)

	// FeedStateChanged is emitted when a Feed transitions between states.
	FeedStateChanged = capitan.NewSignal(
		"relay.feed.state.changed",
		"Feed state transition",
	)

	// FeedDecodeFailed is emitted when a payload cannot be decoded.
	FeedDecodeFailed = capitan.NewSignal(
		"relay.feed.decode.failed",
		"Feed payload decode failed",
	)

	// FeedValidationFailed is emitted when a decoded value fails validation.
	FeedValidationFailed = capitan.NewSignal(
		"relay.feed.validation.failed",
		"Feed value validation failed",
	)

	// FeedApplied is emitted when a decoded value is published to the target.
	FeedApplied = capitan.NewSignal(
		"relay.feed.applied",
		"Feed value published",
	)
)
