package geoproj

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCoordinateMismatch is returned when geometry cannot be safely moved
// between two coordinate references.
var ErrCoordinateMismatch = errors.New("coordinate reference mismatch")

// CRS identifies a coordinate reference system in "AUTHORITY:CODE" form.
type CRS string

const (
	WGS84         CRS = "EPSG:4326"
	WebMercator   CRS = "EPSG:3857"
	WorldMercator CRS = "EPSG:3395"

	// Local is an engineering plane with no geographic anchor. It can only
	// be transformed into itself.
	Local CRS = "LOCAL"
)

var aliases = map[string]CRS{
	"EPSG:4326":                     WGS84,
	"CRS84":                         WGS84,
	"OGC:CRS84":                     WGS84,
	"URN:OGC:DEF:CRS:OGC:1.3:CRS84": WGS84,
	"URN:OGC:DEF:CRS:EPSG::4326":    WGS84,
	"EPSG:3857":                     WebMercator,
	"EPSG:900913":                   WebMercator,
	"EPSG:3785":                     WebMercator,
	"URN:OGC:DEF:CRS:EPSG::3857":    WebMercator,
	"EPSG:3395":                     WorldMercator,
	"URN:OGC:DEF:CRS:EPSG::3395":    WorldMercator,
	"LOCAL":                         Local,
}

// ParseCRS normalizes common spellings of the supported references
// (EPSG codes, OGC URNs, CRS84).
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: coordinate reference is not specified", ErrCoordinateMismatch)
	}

	if crs, ok := aliases[strings.ToUpper(s)]; ok {
		return crs, nil
	}

	return "", fmt.Errorf("%w: unsupported coordinate reference %q", ErrCoordinateMismatch, s)
}

// Geographic reports whether coordinates are longitude/latitude degrees.
func (c CRS) Geographic() bool {
	return c == WGS84
}

// Planar reports whether euclidean distance and area are meaningful in c.
func (c CRS) Planar() bool {
	switch c {
	case WebMercator, WorldMercator, Local:
		return true
	}
	return false
}

func (c CRS) String() string {
	return string(c)
}
