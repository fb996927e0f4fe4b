package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValue is returned by Value when SetValue has never been called.
	ErrNoValue = errors.New("relay: no value set")

	// ErrSourceNotFound is returned by UnregisterSource when the source was
	// never registered or has already been removed.
	ErrSourceNotFound = errors.New("relay: source not found")
)

// ObserverPanic records a panic recovered from an observer during a
// notification pass. The remaining observers of that pass still run.
type ObserverPanic struct {
	// Subject is the name of the subject that was notifying, if any.
	Subject string

	// Value is the value passed to recover().
	Value any
}

func (p *ObserverPanic) Error() string {
	if p.Subject == "" {
		return fmt.Sprintf("relay: observer panicked: %v", p.Value)
	}
	return fmt.Sprintf("relay: observer of %q panicked: %v", p.Subject, p.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (p *ObserverPanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}
