// Package imu calibrates the vision module's inertial sensor.
//
// The accelerometer is calibrated by a six-position sphere fit: with
// the device held still in at least six distinct orientations, every
// corrected reading s*m + b must have magnitude g. Solving for the
// per-axis bias b and scale s is a small nonlinear least squares
// problem, handled here with Gauss-Newton.
package imu

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardGravity is the conventional value of g in m/s^2. Local
// gravity varies by a few parts per thousand; pass a surveyed value
// to SolveCalibration when that matters.
const StandardGravity = 9.80665

// Calibration corrects raw accelerometer readings: for each axis i,
// corrected = Scale[i]*raw + Bias[i].
type Calibration struct {
	Bias  [3]float64
	Scale [3]float64
}

// Identity returns the no-op calibration.
func Identity() Calibration {
	return Calibration{Scale: [3]float64{1, 1, 1}}
}

// Apply corrects one raw accelerometer sample.
func (c Calibration) Apply(raw [3]float64) [3]float64 {
	var out [3]float64
	for i := range raw {
		out[i] = c.Scale[i]*raw[i] + c.Bias[i]
	}
	return out
}

const (
	maxIterations = 100
	convergeTol   = 1e-10
)

// SolveCalibration fits a Calibration to stationary accelerometer
// measurements taken in distinct orientations. At least six
// measurements are required; more improve the fit. gravity is the
// expected magnitude of each corrected reading, in the same units as
// the measurements.
func SolveCalibration(measurements [][3]float64, gravity float64) (Calibration, error) {
	n := len(measurements)
	if n < 6 {
		return Calibration{}, fmt.Errorf("need at least 6 measurements, got %d", n)
	}

	// Parameter vector: [bx, by, bz, sx, sy, sz].
	p := []float64{0, 0, 0, 1, 1, 1}

	residual := mat.NewVecDense(n, nil)
	jacobian := mat.NewDense(n, 6, nil)
	step := mat.NewVecDense(6, nil)
	var qr mat.QR

	g2 := gravity * gravity
	for iter := 0; iter < maxIterations; iter++ {
		for i, m := range measurements {
			// r_i = |s*m + b|^2 - g^2
			var r float64
			for j := 0; j < 3; j++ {
				c := p[3+j]*m[j] + p[j]
				r += c * c
				jacobian.Set(i, j, 2*c)        // d r / d b_j
				jacobian.Set(i, 3+j, 2*c*m[j]) // d r / d s_j
			}
			residual.SetVec(i, g2-r)
		}

		qr.Factorize(jacobian)
		if err := qr.SolveVecTo(step, false, residual); err != nil {
			return Calibration{}, fmt.Errorf("degenerate measurement set: %w", err)
		}
		for j := range p {
			p[j] += step.AtVec(j)
		}
		if mat.Norm(step, 2) < convergeTol {
			var cal Calibration
			copy(cal.Bias[:], p[:3])
			copy(cal.Scale[:], p[3:])
			return cal, nil
		}
	}
	return Calibration{}, fmt.Errorf("calibration did not converge after %d iterations", maxIterations)
}

// AccelBias estimates the additive per-axis accelerometer correction
// from samples captured while the device rests flat (Z up). Gravity is
// removed from the Z axis before averaging, so only the residual
// offset remains. Cruder than SolveCalibration but needs one
// orientation instead of six.
func AccelBias(samples [][3]float64, gravity float64) ([3]float64, error) {
	var bias [3]float64
	if len(samples) == 0 {
		return bias, fmt.Errorf("no samples")
	}
	axis := make([]float64, len(samples))
	for j := 0; j < 3; j++ {
		for i, s := range samples {
			axis[i] = s[j]
		}
		mean := stat.Mean(axis, nil)
		if j == 2 {
			mean -= gravity
		}
		bias[j] = -mean
	}
	return bias, nil
}

// GyroBias estimates the additive per-axis gyro correction from
// samples captured while the device is stationary, along with the
// largest per-axis standard deviation. A large deviation means the
// device was moving and the estimate should be discarded.
func GyroBias(samples [][3]float64) (bias [3]float64, maxStdDev float64, err error) {
	if len(samples) == 0 {
		return bias, 0, fmt.Errorf("no samples")
	}
	axis := make([]float64, len(samples))
	for j := 0; j < 3; j++ {
		for i, s := range samples {
			axis[i] = s[j]
		}
		mean, std := stat.MeanStdDev(axis, nil)
		bias[j] = -mean
		if len(samples) == 1 {
			std = 0
		}
		maxStdDev = math.Max(maxStdDev, std)
	}
	return bias, maxStdDev, nil
}
