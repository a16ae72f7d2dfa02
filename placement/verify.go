package placement

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/royalcat/autobuild/bordertree"
	"github.com/royalcat/autobuild/kdbush"
)

var ErrLayoutViolation = errors.New("layout violates placement rules")

// Violation describes one broken rule. Other is -1 unless the rule is
// spacing.
type Violation struct {
	Index  int
	Other  int
	Reason Verdict
}

func (v Violation) String() string {
	if v.Reason == TooClose {
		return fmt.Sprintf("buildings %d and %d are too close", v.Index, v.Other)
	}
	return fmt.Sprintf("building %d is %s", v.Index, v.Reason)
}

// Verify rechecks a finished layout. All geometry must share one planar
// reference. Each too-close pair is reported once.
func Verify(buildings []orb.Point, parcel orb.MultiPolygon, restricted []orb.Polygon, minDistance float64) ([]Violation, error) {
	points := make([]kdbush.Point[int], len(buildings))
	for i, p := range buildings {
		points[i] = kdbush.Point[int]{X: p[0], Y: p[1], Data: i}
	}
	bush := kdbush.NewBush(points, kdbush.DefaultNodeSize)

	tree := bordertree.NewBorderTree[int](parcel.Bound())
	for i, r := range restricted {
		tree.InsertPolygon(i, r)
	}

	violations := []Violation{}
	for i, p := range buildings {
		if !planar.MultiPolygonContains(parcel, p) {
			violations = append(violations, Violation{Index: i, Other: -1, Reason: OutsideParcel})
		}
		if tree.Contains(p) {
			violations = append(violations, Violation{Index: i, Other: -1, Reason: Restricted})
		}

		bush.Within(p[0], p[1], minDistance, func(j int) bool {
			if j > i && planar.Distance(p, buildings[j]) < minDistance {
				violations = append(violations, Violation{Index: i, Other: j, Reason: TooClose})
			}
			return true
		})
	}

	if len(violations) > 0 {
		return violations, fmt.Errorf("%w: %d violations, first: %s", ErrLayoutViolation, len(violations), violations[0])
	}
	return nil, nil
}
