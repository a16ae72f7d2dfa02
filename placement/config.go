package placement

import (
	"fmt"
	"math"

	"github.com/royalcat/autobuild/geoproj"
)

type SamplerKind string

const (
	SamplerUniform SamplerKind = "uniform"
	SamplerPoisson SamplerKind = "poisson"
)

type Config struct {
	// Density is the buildable share of the parcel area in percent, (0, 100].
	Density float64 `yaml:"density"`
	// MinDistance is the minimal spacing between buildings in working CRS units.
	MinDistance float64 `yaml:"min_distance"`

	// MaxAttempts caps the total number of candidates, 0 disables it.
	MaxAttempts int `yaml:"max_attempts"`
	// MaxConsecutiveRejections caps failed candidates in a row, 0 disables it.
	MaxConsecutiveRejections int `yaml:"max_consecutive_rejections"`

	WorkingCRS geoproj.CRS `yaml:"working_crs"`
	Sampler    SamplerKind `yaml:"sampler"`
	Workers    int         `yaml:"workers"`
	// Seed fixes the random sequence, 0 picks a time based one.
	Seed int64 `yaml:"seed"`
}

func ConfigDefault() Config {
	return Config{
		Density:                  30,
		MinDistance:              10,
		MaxConsecutiveRejections: 10_000,
		WorkingCRS:               geoproj.WorldMercator,
		Sampler:                  SamplerUniform,
		Workers:                  1,
	}
}

// Validate checks the parameters and returns a copy with empty fields
// filled from ConfigDefault.
func (c Config) Validate() (Config, error) {
	if math.IsNaN(c.Density) || c.Density <= 0 || c.Density > 100 {
		return c, fmt.Errorf("%w: density must be in (0, 100], got %v", ErrInvalidConfiguration, c.Density)
	}
	if math.IsNaN(c.MinDistance) || math.IsInf(c.MinDistance, 0) || c.MinDistance <= 0 {
		return c, fmt.Errorf("%w: min distance must be positive and finite, got %v", ErrInvalidConfiguration, c.MinDistance)
	}
	if c.MaxAttempts < 0 || c.MaxConsecutiveRejections < 0 {
		return c, fmt.Errorf("%w: attempt caps must not be negative", ErrInvalidConfiguration)
	}
	if c.MaxAttempts == 0 && c.MaxConsecutiveRejections == 0 {
		return c, fmt.Errorf("%w: at least one attempt cap is required", ErrInvalidConfiguration)
	}
	if c.Workers < 0 {
		return c, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfiguration, c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = 1
	}

	switch c.Sampler {
	case "":
		c.Sampler = SamplerUniform
	case SamplerUniform, SamplerPoisson:
	default:
		return c, fmt.Errorf("%w: unknown sampler %q", ErrInvalidConfiguration, c.Sampler)
	}

	if c.WorkingCRS == "" {
		c.WorkingCRS = geoproj.WorldMercator
	}
	crs, err := geoproj.ParseCRS(c.WorkingCRS.String())
	if err != nil {
		return c, fmt.Errorf("%w: working crs: %w", ErrInvalidConfiguration, err)
	}
	if !crs.Planar() {
		return c, fmt.Errorf("%w: working crs %s is not planar", ErrInvalidConfiguration, crs)
	}
	c.WorkingCRS = crs

	return c, nil
}
