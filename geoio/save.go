package geoio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
)

type Format uint8

const (
	FormatGeoJSON Format = iota
	FormatWKB
)

// FormatFromPath picks the format by extension. A trailing .zst asks for
// compression on top of it.
func FormatFromPath(path string) (format Format, compressed bool, err error) {
	compressed = strings.HasSuffix(path, ".zst")
	ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".zst")))

	switch ext {
	case ".geojson", ".json":
		return FormatGeoJSON, compressed, nil
	case ".wkb":
		return FormatWKB, compressed, nil
	}
	return 0, false, fmt.Errorf("unknown layout format %q", ext)
}

// LayoutCollection renders buildings as Point features in the layout CRS.
// The collection carries the legacy crs member and the run summary.
func LayoutCollection(layout *geomodel.Layout) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range layout.Buildings {
		f := geojson.NewFeature(p)
		f.Properties["index"] = i
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"crs":     crsMember(layout.CRS),
		"status":  layout.Status.String(),
		"summary": layout.Summary(),
	}
	return fc
}

func crsMember(crs geoproj.CRS) map[string]interface{} {
	return map[string]interface{}{
		"type":       "name",
		"properties": map[string]interface{}{"name": crs.String()},
	}
}

func WriteLayout(w io.Writer, format Format, layout *geomodel.Layout) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case FormatGeoJSON:
		data, err = LayoutCollection(layout).MarshalJSON()
	case FormatWKB:
		data, err = wkb.Marshal(orb.MultiPoint(layout.Buildings))
	default:
		return fmt.Errorf("unknown layout format %d", format)
	}
	if err != nil {
		return fmt.Errorf("error encoding layout: %w", err)
	}

	_, err = w.Write(data)
	return err
}

func SaveLayout(path string, layout *geomodel.Layout) error {
	format, compressed, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can`t create file %s: %w", path, err)
	}
	defer file.Close()

	if !compressed {
		if err := WriteLayout(file, format, layout); err != nil {
			return err
		}
		return file.Close()
	}

	enc, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("can`t create zstd writer: %w", err)
	}
	if err := WriteLayout(enc, format, layout); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error compressing layout: %w", err)
	}
	return file.Close()
}

func decodeWKBBuildings(data []byte, crsOverride geoproj.CRS) ([]orb.Point, geoproj.CRS, error) {
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, "", fmt.Errorf("error decoding wkb: %w", err)
	}

	// wkb has no reference, WGS84 unless told otherwise
	crs, err := resolveCRS(nil, crsOverride)
	if err != nil {
		return nil, "", err
	}

	switch g := g.(type) {
	case orb.MultiPoint:
		return []orb.Point(g), crs, nil
	case orb.Point:
		return []orb.Point{g}, crs, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
}
