package heading

import "strconv"

// Direction is one of the eight compass points, or Unavailable.
type Direction string

const (
	Unavailable Direction = ""

	North     Direction = "N"
	NorthEast Direction = "NE"
	East      Direction = "E"
	SouthEast Direction = "SE"
	South     Direction = "S"
	SouthWest Direction = "SW"
	West      Direction = "W"
	NorthWest Direction = "NW"
)

// Directions lists the labels clockwise from north.
var Directions = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// Classify maps an angle in [0,360) to a compass direction.
//
// North spans 20 degrees around 0; the cardinal points E and S span 20
// degrees, W spans 20 degrees and the intercardinal sectors take the rest.
// Branches are mutually exclusive.
func Classify(angle float64) Direction {
	switch {
	case angle >= 350 || angle <= 10:
		return North
	case angle > 280 && angle < 350:
		return NorthWest
	case angle > 260 && angle <= 280:
		return West
	case angle > 190 && angle <= 260:
		return SouthWest
	case angle > 170 && angle <= 190:
		return South
	case angle > 100 && angle <= 170:
		return SouthEast
	case angle > 80 && angle <= 100:
		return East
	case angle > 10 && angle <= 80:
		return NorthEast
	}
	// NaN.
	return Unavailable
}

// Result is a derived heading. It is recomputed on every sample and never
// stored beyond "latest".
type Result struct {
	// Angle is degrees clockwise from magnetic north in [0,360), two decimals.
	Angle     float64
	Direction Direction
	Available bool
}

// String renders the result the way the compass screen shows it.
func (r Result) String() string {
	if !r.Available {
		return "not available"
	}
	return strconv.FormatFloat(r.Angle, 'f', -1, 64) + "  " + string(r.Direction)
}

// Rotation is the angle a clockwise-rotating compass rose must be turned by
// so that north points up.
func (r Result) Rotation() float64 {
	if !r.Available || r.Angle == 0 {
		return 0
	}
	return -r.Angle
}
