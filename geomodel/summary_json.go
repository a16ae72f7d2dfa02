package geomodel

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
)

var (
	_ easyjson.Marshaler = Rejections{}
	_ easyjson.Marshaler = LayoutSummary{}
)

func (r Rejections) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"outside_parcel":`)
	out.Int(r.OutsideParcel)
	out.RawString(`,"restricted":`)
	out.Int(r.Restricted)
	out.RawString(`,"too_close":`)
	out.Int(r.TooClose)
	out.RawByte('}')
}

func (r Rejections) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	r.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

func (s LayoutSummary) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"run_id":`)
	out.String(s.RunID)
	out.RawString(`,"status":`)
	out.String(s.Status)
	out.RawString(`,"buildings":`)
	out.Int(s.Buildings)
	out.RawString(`,"attempts":`)
	out.Int(s.Attempts)
	out.RawString(`,"rejections":`)
	s.Rejections.MarshalEasyJSON(out)
	out.RawString(`,"crs":`)
	out.String(s.CRS)
	out.RawString(`,"working_crs":`)
	out.String(s.WorkingCRS)
	out.RawString(`,"density":`)
	out.Float64(s.Density)
	out.RawString(`,"min_distance":`)
	out.Float64(s.MinDistance)
	out.RawString(`,"parcel_area":`)
	out.Float64(s.ParcelArea)
	out.RawString(`,"budget":`)
	out.Float64(s.Budget)
	out.RawString(`,"budget_remaining":`)
	out.Float64(s.BudgetRemaining)
	out.RawString(`,"elapsed_ms":`)
	out.Int64(s.ElapsedMs)
	out.RawByte('}')
}

// MarshalJSON skips reflection, summaries are written on every HTTP response.
func (s LayoutSummary) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	s.MarshalEasyJSON(&w)
	return w.BuildBytes()
}
