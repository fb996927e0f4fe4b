package relay

// State is the health of a Feed.
type State int32

const (
	// StateLoading means the Feed has not processed its first payload.
	StateLoading State = iota

	// StateHealthy means the last payload was decoded, validated and
	// published to the target.
	StateHealthy

	// StateDegraded means the last payload was rejected. The target still
	// holds the previously published value.
	StateDegraded

	// StateEmpty means no payload has been published yet because every one
	// so far was rejected. The Feed keeps watching.
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}
