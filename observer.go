package relay

import (
	"fmt"
	"reflect"
)

// Observer receives values published by a Subject.
//
// Observers are tracked by identity: two observers are the same registration
// when they compare equal with ==. Implementations must therefore be
// comparable, which pointer types always are.
type Observer[T any] interface {
	// Update is called synchronously with each new value.
	Update(value T)
}

// funcObserver adapts a plain function to the Observer interface. It is
// always handled through a pointer so that each adapter has its own identity.
type funcObserver[T any] struct {
	fn func(T)
}

func (o *funcObserver[T]) Update(value T) {
	o.fn(value)
}

// Func wraps fn as an Observer. Every call returns a distinct observer, so
// keep the result if it needs to be unregistered later:
//
//	obs := subject.RegisterObserver(relay.Func(func(v int) {
//	    log.Printf("value: %d", v)
//	}))
//	defer subject.UnregisterObserver(obs)
func Func[T any](fn func(T)) Observer[T] {
	return &funcObserver[T]{fn: fn}
}

// upcast forwards values of a narrower type T to an observer of a broader
// type U. It is a comparable value type: upcasting the same observer twice
// produces equal adapters.
type upcast[T, U any] struct {
	inner Observer[U]
}

func (o upcast[T, U]) Update(value T) {
	v, ok := any(value).(U)
	if !ok {
		panic(fmt.Sprintf("relay: %T is not assignable to %s", value, reflect.TypeFor[U]()))
	}
	o.inner.Update(v)
}

// Upcast adapts an observer of a broader type U so it can be registered on a
// Subject[T]. U is usually an interface that T implements, such as any or
// fmt.Stringer:
//
//	var logAll relay.Observer[any] = relay.Func(func(v any) { log.Println(v) })
//	temps.RegisterObserver(relay.Upcast[Celsius](logAll))
//
// The adapter keeps the identity of obs, so Upcast(obs) registered twice is
// a single registration and Upcast(obs) can unregister it.
func Upcast[T, U any](obs Observer[U]) Observer[T] {
	mustBeComparable("observer", obs)
	return upcast[T, U]{inner: obs}
}

// mustBeComparable panics if v cannot be compared by identity. what names
// the role of v in the panic message.
func mustBeComparable(what string, v any) {
	if v == nil {
		panic("relay: nil " + what)
	}
	if t := reflect.TypeOf(v); !t.Comparable() {
		panic(fmt.Sprintf("relay: %s type %s is not comparable; use a pointer type", what, t))
	}
}

// identifiable reports whether v is non-nil and safe to compare with ==.
func identifiable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}

// isNil reports whether v is nil or holds a nil pointer, map, slice, channel,
// func or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
