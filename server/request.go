package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/royalcat/autobuild/geoio"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
)

var errBadRequest = errors.New("bad request")

// layoutRequest fields left out keep the server defaults.
type layoutRequest struct {
	Parcel     json.RawMessage `json:"parcel"`
	Restricted json.RawMessage `json:"restricted"`
	CRS        string          `json:"crs"`

	Density                  *float64 `json:"density"`
	MinDistance              *float64 `json:"min_distance"`
	MaxAttempts              *int     `json:"max_attempts"`
	MaxConsecutiveRejections *int     `json:"max_consecutive_rejections"`
	Seed                     *int64   `json:"seed"`
	Sampler                  string   `json:"sampler"`
}

type layoutJob struct {
	config     placement.Config
	parcel     geomodel.Parcel
	restricted geomodel.RestrictedAreas
}

func parseLayoutRequest(data []byte, base placement.Config) (layoutJob, error) {
	var req layoutRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return layoutJob{}, fmt.Errorf("%w: failed to parse request: %w", errBadRequest, err)
	}
	if isEmpty(req.Parcel) {
		return layoutJob{}, fmt.Errorf("%w: parcel is required", errBadRequest)
	}

	cfg := base
	if req.Density != nil {
		cfg.Density = *req.Density
	}
	if req.MinDistance != nil {
		cfg.MinDistance = *req.MinDistance
	}
	if req.MaxAttempts != nil {
		cfg.MaxAttempts = *req.MaxAttempts
	}
	if req.MaxConsecutiveRejections != nil {
		cfg.MaxConsecutiveRejections = *req.MaxConsecutiveRejections
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Sampler != "" {
		cfg.Sampler = placement.SamplerKind(req.Sampler)
	}

	crs := geoproj.CRS(req.CRS)

	parcel, parcelCRS, err := geoio.DecodePolygons(req.Parcel, crs)
	if err != nil {
		return layoutJob{}, fmt.Errorf("%w: parcel: %w", errBadRequest, err)
	}

	job := layoutJob{
		config: cfg,
		parcel: geomodel.Parcel{Polygons: parcel, CRS: parcelCRS},
	}

	if !isEmpty(req.Restricted) {
		restricted, restrictedCRS, err := geoio.DecodePolygons(req.Restricted, crs)
		if err != nil {
			return layoutJob{}, fmt.Errorf("%w: restricted: %w", errBadRequest, err)
		}
		job.restricted = geomodel.RestrictedAreas{Polygons: restricted, CRS: restrictedCRS}
	}

	return job, nil
}

func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
