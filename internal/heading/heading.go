package heading

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StandardGravity is g in m/s^2.
const StandardGravity = 9.81

var (
	// ErrDegenerate is returned when gravity and the geomagnetic field do not
	// span a plane (free fall, zero or parallel vectors).
	ErrDegenerate = errors.New("heading: degenerate sensor vectors")
	// ErrNoData is returned when one of the two vectors was never received.
	ErrNoData = errors.New("heading: no sensor data")
)

// Reading holds the latest accelerometer and magnetometer vectors.
//
// It has a single writer: whoever owns it (the session controller) copies
// new sensor values in place. No history is kept.
type Reading struct {
	Accel [3]float64
	Mag   [3]float64

	HaveAccel bool
	HaveMag   bool
}

func (r *Reading) SetAccel(v [3]float64) {
	r.Accel = v
	r.HaveAccel = true
}

func (r *Reading) SetMag(v [3]float64) {
	r.Mag = v
	r.HaveMag = true
}

func (r *Reading) Reset() {
	*r = Reading{}
}

// RotationMatrix builds the device rotation matrix [H; M; A] from a gravity
// vector (m/s^2) and a geomagnetic vector (any unit, typically uT).
//
// Rows are East, North and Up expressed in device coordinates.
func RotationMatrix(gravity, geomagnetic [3]float64) (*mat.Dense, error) {
	a := r3.Vec{X: gravity[0], Y: gravity[1], Z: gravity[2]}
	e := r3.Vec{X: geomagnetic[0], Y: geomagnetic[1], Z: geomagnetic[2]}

	if r3.Norm2(a) < 0.01*StandardGravity*StandardGravity {
		// Device is in free fall (or the accelerometer reads zero).
		return nil, fmt.Errorf("%w: gravity too small", ErrDegenerate)
	}

	h := r3.Cross(e, a)
	normH := r3.Norm(h)
	if normH < 0.1 {
		return nil, fmt.Errorf("%w: field parallel to gravity or zero", ErrDegenerate)
	}
	h = r3.Scale(1/normH, h)
	a = r3.Unit(a)
	m := r3.Cross(a, h)

	return mat.NewDense(3, 3, []float64{
		h.X, h.Y, h.Z,
		m.X, m.Y, m.Z,
		a.X, a.Y, a.Z,
	}), nil
}

// Orientation returns azimuth, pitch and roll in radians for a rotation
// matrix produced by RotationMatrix.
func Orientation(r mat.Matrix) (azimuth, pitch, roll float64) {
	azimuth = math.Atan2(r.At(0, 1), r.At(1, 1))
	pitch = math.Asin(-r.At(2, 1))
	roll = math.Atan2(-r.At(2, 0), r.At(2, 2))
	return azimuth, pitch, roll
}

// Azimuth computes the heading in degrees, normalized to [0,360) and
// rounded to two decimal places.
func Azimuth(gravity, geomagnetic [3]float64) (float64, error) {
	r, err := RotationMatrix(gravity, geomagnetic)
	if err != nil {
		return 0, err
	}
	az, _, _ := Orientation(r)
	return azimuthDegrees(az), nil
}

func azimuthDegrees(azimuthRad float64) float64 {
	deg := math.Mod(azimuthRad*180/math.Pi+360, 360)
	angle := math.RoundToEven(deg*100) / 100
	if angle >= 360 {
		angle = 0
	}
	return angle
}

// Compute derives a Result from the latest reading. It never fails: missing
// or degenerate data yields an unavailable result.
func Compute(r Reading) Result {
	res, _ := compute(r)
	return res
}

func compute(r Reading) (Result, error) {
	if !r.HaveAccel || !r.HaveMag {
		return Result{}, ErrNoData
	}
	angle, err := Azimuth(r.Accel, r.Mag)
	if err != nil {
		return Result{}, err
	}
	return Result{Angle: angle, Direction: Classify(angle), Available: true}, nil
}

// Explain is Compute plus the reason a result is unavailable.
func Explain(r Reading) (Result, error) {
	return compute(r)
}
