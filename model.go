package main

import "math"

// VehicleState is the normalized record published to observers.
type VehicleState struct {
	ID      string  `json:"id"`
	IsEgo   bool    `json:"isEgo"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`
	Speed   float64 `json:"speed"`
}

// normalizeHeading wraps degrees into [0, 360).
func normalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
