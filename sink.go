package main

import "errors"

// Sink receives every VehicleState the relay emits.
type Sink interface {
	Publish(v VehicleState) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(v VehicleState) error

func (f SinkFunc) Publish(v VehicleState) error { return f(v) }

// fanout publishes to each sink in order. A failing sink doesn't stop delivery
// to the rest.
type fanout []Sink

func (f fanout) Publish(v VehicleState) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
