package geoproj

import (
	"math"

	"github.com/paulmach/orb"
)

// WGS84 ellipsoid
const (
	semiMajorAxis = 6378137.0
	eccentricity  = 0.08181919084262149

	mercatorLatitudeLimit = 89.5

	maxInverseIterations = 15
	inverseTolerance     = 1e-12
)

// ellipsoidalForward projects WGS84 lon/lat into World Mercator (EPSG:3395).
// orb/project only ships the spherical variant.
func ellipsoidalForward(p orb.Point) orb.Point {
	lat := math.Max(-mercatorLatitudeLimit, math.Min(p[1], mercatorLatitudeLimit))

	lambda := p[0] * math.Pi / 180
	phi := lat * math.Pi / 180

	esin := eccentricity * math.Sin(phi)
	y := math.Log(math.Tan(math.Pi/4+phi/2) * math.Pow((1-esin)/(1+esin), eccentricity/2))

	return orb.Point{semiMajorAxis * lambda, semiMajorAxis * y}
}

func ellipsoidalInverse(p orb.Point) orb.Point {
	t := math.Exp(-p[1] / semiMajorAxis)
	phi := math.Pi/2 - 2*math.Atan(t)

	for range maxInverseIterations {
		esin := eccentricity * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-esin)/(1+esin), eccentricity/2))
		if math.Abs(next-phi) < inverseTolerance {
			phi = next
			break
		}
		phi = next
	}

	return orb.Point{
		p[0] / semiMajorAxis * 180 / math.Pi,
		phi * 180 / math.Pi,
	}
}
