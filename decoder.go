package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned for chunks that don't decode into a complete VehicleState.
var ErrMalformedPayload = errors.New("malformed payload")

// vehicleRecord mirrors the wire format. Pointers distinguish missing fields from zero values.
type vehicleRecord struct {
	ID      *string  `json:"id"`
	IsEgo   *bool    `json:"isEgo"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Z       *float64 `json:"z"`
	Heading *float64 `json:"heading"`
	Speed   *float64 `json:"speed"`
}

// decodeVehicleState parses one read chunk. Each chunk must carry exactly one
// complete record; nothing is buffered across chunks.
func decodeVehicleState(chunk []byte) (VehicleState, error) {
	chunk = bytes.TrimSpace(chunk)
	if len(chunk) == 0 {
		return VehicleState{}, fmt.Errorf("%w: empty chunk", ErrMalformedPayload)
	}

	var r vehicleRecord
	if err := json.Unmarshal(chunk, &r); err != nil {
		return VehicleState{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch {
	case r.ID == nil || *r.ID == "":
		return VehicleState{}, fmt.Errorf("%w: missing id", ErrMalformedPayload)
	case r.X == nil || r.Y == nil || r.Z == nil:
		return VehicleState{}, fmt.Errorf("%w: missing position", ErrMalformedPayload)
	case r.Heading == nil:
		return VehicleState{}, fmt.Errorf("%w: missing heading", ErrMalformedPayload)
	case r.Speed == nil:
		return VehicleState{}, fmt.Errorf("%w: missing speed", ErrMalformedPayload)
	case *r.Speed < 0:
		return VehicleState{}, fmt.Errorf("%w: negative speed %v", ErrMalformedPayload, *r.Speed)
	}

	v := VehicleState{
		ID:      *r.ID,
		X:       *r.X,
		Y:       *r.Y,
		Z:       *r.Z,
		Heading: normalizeHeading(*r.Heading),
		Speed:   *r.Speed,
	}
	if r.IsEgo != nil {
		v.IsEgo = *r.IsEgo
	}
	return v, nil
}
