package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/mailru/easyjson/jwriter"
	"github.com/royalcat/autobuild/geoio"
	"github.com/royalcat/autobuild/geomodel"
	"github.com/royalcat/autobuild/geoproj"
	"github.com/royalcat/autobuild/placement"
)

// marshalLayout writes {"summary": {...}, "buildings": FeatureCollection}.
func marshalLayout(layout *geomodel.Layout) ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`{"summary":`)
	layout.Summary().MarshalEasyJSON(&w)
	w.RawString(`,"buildings":`)
	w.Raw(geoio.LayoutCollection(layout).MarshalJSON())
	w.RawByte('}')
	return w.BuildBytes()
}

func marshalError(err error) []byte {
	w := jwriter.Writer{}
	w.RawString(`{"error":`)
	w.String(err.Error())
	w.RawByte('}')
	data, _ := w.BuildBytes()
	return data
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, geoproj.ErrCoordinateMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, placement.ErrInvalidConfiguration),
		errors.Is(err, placement.ErrInvalidGeometry),
		errors.Is(err, geoio.ErrUnsupportedGeometry),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
