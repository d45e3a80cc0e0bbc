package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decodeVehicleState(t *testing.T) {
	tests := []struct {
		name     string
		given    string
		expected VehicleState
	}{
		{
			name:     "complete record",
			given:    `{"id":"car1","x":1,"y":2,"z":0,"heading":90,"speed":3}`,
			expected: VehicleState{ID: "car1", X: 1, Y: 2, Z: 0, Heading: 90, Speed: 3},
		},
		{
			name:     "ego flag",
			given:    `{"id":"ego","isEgo":true,"x":-1.5,"y":0.25,"z":3,"heading":0,"speed":0}`,
			expected: VehicleState{ID: "ego", IsEgo: true, X: -1.5, Y: 0.25, Z: 3, Heading: 0, Speed: 0},
		},
		{
			name:     "unknown fields ignored",
			given:    `{"id":"car2","x":0,"y":0,"z":0,"heading":10,"speed":1,"lane":4,"meta":{"a":1}}`,
			expected: VehicleState{ID: "car2", Heading: 10, Speed: 1},
		},
		{
			name:     "trailing newline",
			given:    "{\"id\":\"car3\",\"x\":0,\"y\":0,\"z\":0,\"heading\":1,\"speed\":1}\n",
			expected: VehicleState{ID: "car3", Heading: 1, Speed: 1},
		},
		{
			name:     "heading wrapped",
			given:    `{"id":"car4","x":0,"y":0,"z":0,"heading":450,"speed":1}`,
			expected: VehicleState{ID: "car4", Heading: 90, Speed: 1},
		},
		{
			name:     "negative heading wrapped",
			given:    `{"id":"car5","x":0,"y":0,"z":0,"heading":-90,"speed":1}`,
			expected: VehicleState{ID: "car5", Heading: 270, Speed: 1},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := decodeVehicleState([]byte(test.given))
			require.NoError(t, err)
			assert.Equal(t, test.expected, v)
		})
	}
}

func Test_decodeVehicleState_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		given string
	}{
		{name: "empty", given: ""},
		{name: "whitespace", given: "  \n"},
		{name: "not json", given: "hello"},
		{name: "truncated", given: `{"id":"car1","x":1`},
		{name: "array", given: `[1,2,3]`},
		{name: "missing id", given: `{"x":1,"y":2,"z":0,"heading":90,"speed":3}`},
		{name: "empty id", given: `{"id":"","x":1,"y":2,"z":0,"heading":90,"speed":3}`},
		{name: "missing z", given: `{"id":"car1","x":1,"y":2,"heading":90,"speed":3}`},
		{name: "missing heading", given: `{"id":"car1","x":1,"y":2,"z":0,"speed":3}`},
		{name: "missing speed", given: `{"id":"car1","x":1,"y":2,"z":0,"heading":90}`},
		{name: "negative speed", given: `{"id":"car1","x":1,"y":2,"z":0,"heading":90,"speed":-1}`},
		{name: "wrong type", given: `{"id":"car1","x":"one","y":2,"z":0,"heading":90,"speed":3}`},
		{name: "two records", given: `{"id":"a","x":0,"y":0,"z":0,"heading":0,"speed":0}{"id":"b"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := decodeVehicleState([]byte(test.given))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func Test_normalizeHeading(t *testing.T) {
	assert.Equal(t, 0.0, normalizeHeading(360))
	assert.Equal(t, 0.0, normalizeHeading(-360))
	assert.InDelta(t, 359.5, normalizeHeading(-0.5), 1e-9)
	assert.InDelta(t, 10.0, normalizeHeading(730), 1e-9)
}
