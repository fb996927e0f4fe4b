package relay

import "github.com/zoobzio/capitan"

// Field keys for relay events.
var (
	// KeySubject is the configured name of the subject involved, or empty.
	KeySubject = capitan.NewStringKey("subject")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeySources is the number of sources registered on a Mediator after
	// the event.
	KeySources = capitan.NewIntKey("sources")

	// KeyDebounce is the configured debounce duration of a Feed.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyOldState is the Feed state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the Feed state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyContentType is the content type of the codec used by a Feed.
	KeyContentType = capitan.NewStringKey("content_type")
)
