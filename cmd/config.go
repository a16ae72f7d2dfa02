package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// runConfig is a placement config file. Paths are resolved relative to
// the working directory, flags override every field.
type runConfig struct {
	placement.Config `yaml:",inline"`

	Parcel        string `yaml:"parcel"`
	ParcelCRS     string `yaml:"parcel_crs"`
	Restricted    string `yaml:"restricted"`
	RestrictedCRS string `yaml:"restricted_crs"`
}

func loadRunConfig(path string) (runConfig, error) {
	rc := runConfig{Config: placement.ConfigDefault()}
	if path == "" {
		return rc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rc, fmt.Errorf("error reading config: %w", err)
	}
	return decodeRunConfig(data)
}

func decodeRunConfig(data []byte) (runConfig, error) {
	rc := runConfig{Config: placement.ConfigDefault()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rc); err != nil && !errors.Is(err, io.EOF) {
		return rc, fmt.Errorf("error parsing config: %w", err)
	}
	return rc, nil
}

func (rc runConfig) parcelCRS() geoproj.CRS {
	return geoproj.CRS(rc.ParcelCRS)
}

func (rc runConfig) restrictedCRS() geoproj.CRS {
	return geoproj.CRS(rc.RestrictedCRS)
}

func placementFlags() []cli.Flag {
	def := placement.ConfigDefault()
	return []cli.Flag{
		&cli.StringFlag{
			Name:      "config",
			Aliases:   []string{"c"},
			Usage:     "yaml placement config",
			TakesFile: true,
		},
		&cli.FloatFlag{
			Name:    "density",
			Aliases: []string{"d"},
			Usage:   "percent of the parcel area to build on",
			Value:   def.Density,
		},
		&cli.FloatFlag{
			Name:    "min-distance",
			Aliases: []string{"m"},
			Usage:   "minimum distance between buildings in working crs units",
			Value:   def.MinDistance,
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Value: def.MaxAttempts,
		},
		&cli.IntFlag{
			Name:  "max-rejections",
			Usage: "consecutive rejections before giving up",
			Value: def.MaxConsecutiveRejections,
		},
		&cli.IntFlag{
			Name:  "workers",
			Value: def.Workers,
		},
		&cli.Int64Flag{
			Name:  "seed",
			Usage: "random seed, 0 picks one from the clock",
		},
		&cli.StringFlag{
			Name:  "sampler",
			Usage: "uniform or poisson",
			Value: string(def.Sampler),
		},
		&cli.StringFlag{
			Name:  "working-crs",
			Value: def.WorkingCRS.String(),
		},
	}
}

func layoutFileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:      "parcel",
			Aliases:   []string{"p"},
			Usage:     "parcel geojson, optionally .zst",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:  "parcel-crs",
			Usage: "reference of the parcel, overrides the file",
		},
		&cli.StringFlag{
			Name:      "restricted",
			Aliases:   []string{"r"},
			Usage:     "restricted areas geojson, optionally .zst",
			TakesFile: true,
		},
		&cli.StringFlag{
			Name:  "restricted-crs",
			Usage: "reference of the restricted areas, overrides the file",
		},
	}
}

// applyFlags overrides rc with every flag set on the command line.
func applyFlags(cmd *cli.Command, rc *runConfig) {
	if cmd.IsSet("density") {
		rc.Density = cmd.Float("density")
	}
	if cmd.IsSet("min-distance") {
		rc.MinDistance = cmd.Float("min-distance")
	}
	if cmd.IsSet("max-attempts") {
		rc.MaxAttempts = cmd.Int("max-attempts")
	}
	if cmd.IsSet("max-rejections") {
		rc.MaxConsecutiveRejections = cmd.Int("max-rejections")
	}
	if cmd.IsSet("workers") {
		rc.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("seed") {
		rc.Seed = cmd.Int64("seed")
	}
	if cmd.IsSet("sampler") {
		rc.Sampler = placement.SamplerKind(cmd.String("sampler"))
	}
	if cmd.IsSet("working-crs") {
		rc.WorkingCRS = geoproj.CRS(cmd.String("working-crs"))
	}
	if cmd.IsSet("parcel") {
		rc.Parcel = cmd.String("parcel")
	}
	if cmd.IsSet("parcel-crs") {
		rc.ParcelCRS = cmd.String("parcel-crs")
	}
	if cmd.IsSet("restricted") {
		rc.Restricted = cmd.String("restricted")
	}
	if cmd.IsSet("restricted-crs") {
		rc.RestrictedCRS = cmd.String("restricted-crs")
	}
}
