package module

import (
	"fmt"
	"reflect"
)

// PortsOf finds a T in m's port bundle. The bundle itself is tried first,
// then each exported field of a struct (or pointer to struct) bundle.
func PortsOf[T any](m Module) (T, bool) {
	var zero T
	bundle := m.Ports()
	if bundle == nil {
		return zero, false
	}
	if v, ok := bundle.(T); ok {
		return v, true
	}

	rv := reflect.ValueOf(bundle)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return zero, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return zero, false
	}
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanInterface() {
			continue
		}
		if v, ok := f.Interface().(T); ok {
			return v, true
		}
	}
	return zero, false
}

// MustPortsOf panics when m does not expose a T
func MustPortsOf[T any](m Module) T {
	v, ok := PortsOf[T](m)
	if !ok {
		panic(fmt.Sprintf("module %s: requested port not found (%T)", m.Name(), (*T)(nil)))
	}
	return v
}
