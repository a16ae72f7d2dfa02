// Package geoio moves parcels, restricted areas and layouts between files
// and the geomodel types.
package geoio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"golang.org/x/exp/mmap"
)

var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// LoadParcel reads a GeoJSON file of polygons. An empty crsOverride keeps
// the reference named in the file, WGS84 when the file names none.
func LoadParcel(path string, crsOverride geoproj.CRS) (geomodel.Parcel, error) {
	data, err := readFile(path)
	if err != nil {
		return geomodel.Parcel{}, err
	}

	polys, crs, err := DecodePolygons(data, crsOverride)
	if err != nil {
		return geomodel.Parcel{}, fmt.Errorf("parcel %s: %w", path, err)
	}
	return geomodel.Parcel{Polygons: orb.MultiPolygon(polys), CRS: crs}, nil
}

// LoadRestricted is LoadParcel for restricted areas. An empty path means
// no restrictions.
func LoadRestricted(path string, crsOverride geoproj.CRS) (geomodel.RestrictedAreas, error) {
	if path == "" {
		return geomodel.RestrictedAreas{CRS: crsOverride}, nil
	}

	data, err := readFile(path)
	if err != nil {
		return geomodel.RestrictedAreas{}, err
	}

	polys, crs, err := DecodePolygons(data, crsOverride)
	if err != nil {
		return geomodel.RestrictedAreas{}, fmt.Errorf("restricted areas %s: %w", path, err)
	}
	return geomodel.RestrictedAreas{Polygons: polys, CRS: crs}, nil
}

// LoadBuildings reads points written by SaveLayout, or any GeoJSON of points.
func LoadBuildings(path string, crsOverride geoproj.CRS) ([]orb.Point, geoproj.CRS, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, "", err
	}

	if strings.HasSuffix(strings.TrimSuffix(path, ".zst"), ".wkb") {
		return decodeWKBBuildings(data, crsOverride)
	}

	geoms, crs, err := decode(data, crsOverride)
	if err != nil {
		return nil, "", fmt.Errorf("buildings %s: %w", path, err)
	}

	points := []orb.Point{}
	for i, g := range geoms {
		switch g := g.(type) {
		case orb.Point:
			points = append(points, g)
		case orb.MultiPoint:
			points = append(points, g...)
		case nil:
			return nil, "", fmt.Errorf("buildings %s: feature %d: %w: missing geometry", path, i, ErrUnsupportedGeometry)
		default:
			return nil, "", fmt.Errorf("buildings %s: feature %d: %w: %s", path, i, ErrUnsupportedGeometry, g.GeoJSONType())
		}
	}
	return points, crs, nil
}

// DecodePolygons accepts a FeatureCollection, a Feature or a bare geometry
// and flattens every Polygon and MultiPolygon it finds.
func DecodePolygons(data []byte, crsOverride geoproj.CRS) ([]orb.Polygon, geoproj.CRS, error) {
	geoms, crs, err := decode(data, crsOverride)
	if err != nil {
		return nil, "", err
	}
	polys, err := Polygons(geoms)
	if err != nil {
		return nil, "", err
	}
	return polys, crs, nil
}

// CollectionPolygons is DecodePolygons for an already parsed collection.
func CollectionPolygons(fc *geojson.FeatureCollection, crsOverride geoproj.CRS) ([]orb.Polygon, geoproj.CRS, error) {
	crs, err := resolveCRS(fc.ExtraMembers, crsOverride)
	if err != nil {
		return nil, "", err
	}
	polys, err := Polygons(featureGeometries(fc))
	if err != nil {
		return nil, "", err
	}
	return polys, crs, nil
}

func featureGeometries(fc *geojson.FeatureCollection) []orb.Geometry {
	geoms := make([]orb.Geometry, 0, len(fc.Features))
	for _, f := range fc.Features {
		geoms = append(geoms, f.Geometry)
	}
	return geoms
}

func Polygons(geoms []orb.Geometry) ([]orb.Polygon, error) {
	polys := []orb.Polygon{}
	for i, g := range geoms {
		switch g := g.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		case nil:
			return nil, fmt.Errorf("feature %d: %w: missing geometry", i, ErrUnsupportedGeometry)
		default:
			return nil, fmt.Errorf("feature %d: %w: %s", i, ErrUnsupportedGeometry, g.GeoJSONType())
		}
	}
	return polys, nil
}

func decode(data []byte, crsOverride geoproj.CRS) ([]orb.Geometry, geoproj.CRS, error) {
	var probe struct {
		Type string                 `json:"type"`
		CRS  map[string]interface{} `json:"crs"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, "", fmt.Errorf("error decoding geojson: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, "", fmt.Errorf("error decoding feature collection: %w", err)
		}
		crs, err := resolveCRS(fc.ExtraMembers, crsOverride)
		if err != nil {
			return nil, "", err
		}
		return featureGeometries(fc), crs, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, "", fmt.Errorf("error decoding feature: %w", err)
		}
		crs, err := resolveCRS(crsMembers(probe.CRS), crsOverride)
		if err != nil {
			return nil, "", err
		}
		return []orb.Geometry{f.Geometry}, crs, nil

	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, "", fmt.Errorf("error decoding geometry: %w", err)
		}
		crs, err := resolveCRS(crsMembers(probe.CRS), crsOverride)
		if err != nil {
			return nil, "", err
		}
		return []orb.Geometry{g.Geometry()}, crs, nil
	}
}

// crsMembers wraps a crs member read from a Feature or a bare geometry,
// orb only keeps extra members on FeatureCollections.
func crsMembers(crs map[string]interface{}) geojson.Properties {
	if crs == nil {
		return nil
	}
	return geojson.Properties{"crs": crs}
}

// resolveCRS reads the pre RFC 7946 "crs" member:
//
//	"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}}
func resolveCRS(members geojson.Properties, override geoproj.CRS) (geoproj.CRS, error) {
	if override != "" {
		return geoproj.ParseCRS(override.String())
	}

	member, ok := members["crs"].(map[string]interface{})
	if !ok {
		return geoproj.WGS84, nil
	}
	props, _ := member["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	if name == "" {
		return "", fmt.Errorf("%w: crs member has no name", geoproj.ErrCoordinateMismatch)
	}
	return geoproj.ParseCRS(name)
}

// readFile maps the file into memory, .zst files are decompressed.
func readFile(path string) ([]byte, error) {
	file, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can`t open file %s: %w", path, err)
	}
	defer file.Close()

	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(io.NewSectionReader(file, 0, int64(file.Len())))
		if err != nil {
			return nil, fmt.Errorf("can`t create zstd reader: %w", err)
		}
		defer dec.Close()

		data, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("error decompressing %s: %w", path, err)
		}
		return data, nil
	}

	data := make([]byte, file.Len())
	if _, err := file.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return data, nil
}
