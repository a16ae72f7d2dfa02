package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const parcel = `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {},
	"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`

const restricted = `{"type": "Polygon", "coordinates": [[[0.25,0.25],[0.75,0.25],[0.75,0.75],[0.25,0.75],[0.25,0.25]]]}`

func testConfig() placement.Config {
	cfg := placement.ConfigDefault()
	cfg.WorkingCRS = geoproj.Local
	cfg.Seed = 1
	return cfg
}

func do(t *testing.T, method, uri, body string) *fasthttp.RequestCtx {
	t.Helper()

	handler, err := NewHandler(context.Background(), testConfig())
	require.NoError(t, err)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	ctx.Request.SetBodyString(body)
	handler(ctx)
	return ctx
}

type layoutResponse struct {
	Summary struct {
		Status    string `json:"status"`
		Buildings int    `json:"buildings"`
		CRS       string `json:"crs"`
	} `json:"summary"`
	Buildings struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates [2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	} `json:"buildings"`
}

func TestLayoutHandler(t *testing.T) {
	body := fmt.Sprintf(`{"parcel": %s, "restricted": %s, "crs": "LOCAL", "density": 20, "min_distance": 0.05}`, parcel, restricted)
	ctx := do(t, http.MethodPost, "/layout", body)

	require.Equal(t, http.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	var resp layoutResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))

	assert.Equal(t, "complete", resp.Summary.Status)
	assert.Equal(t, 80, resp.Summary.Buildings)
	assert.Equal(t, "LOCAL", resp.Summary.CRS)
	assert.Equal(t, "FeatureCollection", resp.Buildings.Type)
	require.Len(t, resp.Buildings.Features, 80)

	for _, f := range resp.Buildings.Features {
		x, y := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		assert.False(t, x >= 0.25 && x <= 0.75 && y >= 0.25 && y <= 0.75, "building %v in restricted area", f.Geometry.Coordinates)
	}
}

func TestLayoutHandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed body", `{"parcel":`, http.StatusBadRequest},
		{"missing parcel", `{"density": 10}`, http.StatusBadRequest},
		{"zero density", fmt.Sprintf(`{"parcel": %s, "crs": "LOCAL", "density": 0}`, parcel), http.StatusBadRequest},
		{"no caps", fmt.Sprintf(`{"parcel": %s, "crs": "LOCAL", "max_consecutive_rejections": 0}`, parcel), http.StatusBadRequest},
		{"point parcel", `{"parcel": {"type": "Point", "coordinates": [1, 2]}, "crs": "LOCAL"}`, http.StatusBadRequest},
		{"open ring", `{"parcel": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1]]]}, "crs": "LOCAL"}`, http.StatusBadRequest},
		{"unknown crs", fmt.Sprintf(`{"parcel": %s, "crs": "EPSG:32648"}`, parcel), http.StatusUnprocessableEntity},
		// degrees are assumed, working reference is LOCAL
		{"mismatched crs", fmt.Sprintf(`{"parcel": %s}`, parcel), http.StatusUnprocessableEntity},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctx := do(t, http.MethodPost, "/layout", c.body)
			assert.Equal(t, c.code, ctx.Response.StatusCode(), string(ctx.Response.Body()))

			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHealth(t *testing.T) {
	ctx := do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "ok", string(ctx.Response.Body()))
}

func TestParseLayoutRequestDefaults(t *testing.T) {
	job, err := parseLayoutRequest([]byte(fmt.Sprintf(`{"parcel": %s, "seed": 7, "sampler": "poisson"}`, parcel)), placement.ConfigDefault())
	require.NoError(t, err)

	assert.Equal(t, 30.0, job.config.Density)
	assert.Equal(t, int64(7), job.config.Seed)
	assert.Equal(t, placement.SamplerPoisson, job.config.Sampler)
	assert.Equal(t, geoproj.WGS84, job.parcel.CRS)
	assert.True(t, job.restricted.Empty())
}

func BenchmarkLayoutHandler(b *testing.B) {
	s, err := newServer(context.Background(), testConfig())
	require.NoError(b, err)

	body := fmt.Sprintf(`{"parcel": %s, "crs": "LOCAL", "density": 10, "min_distance": 0.02}`, parcel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.SetBodyString(body)
		s.LayoutHandler(ctx)
	}
}
