package model

import "math"

// Vector represents a position in metres.
type Vector struct {
	X float64
	Y float64
	Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vector) DistanceTo(other Vector) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Add returns v + other.
func (v Vector) Add(other Vector) Vector {
	return Vector{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// StationRole distinguishes access points from client stations.
type StationRole int

const (
	RoleUnknown StationRole = iota
	RoleAccessPoint
	RoleStation
)

func (r StationRole) String() string {
	switch r {
	case RoleAccessPoint:
		return "AP"
	case RoleStation:
		return "STA"
	default:
		return "UNKNOWN"
	}
}

// Station represents a simulated wireless endpoint (mobile node or access
// point) identified by a fixed link-layer address.
type Station struct {
	ID      string
	Name    string
	Role    StationRole
	Address MacAddress

	Position Vector
}
