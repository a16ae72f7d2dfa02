package placement_test

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/autobuild/placement"
)

func TestCheckerMatchesIsValid(t *testing.T) {
	parcel := orb.MultiPolygon{
		square(0, 0, 1, 1),
		square(2, 0, 3, 1),
	}
	restricted := []orb.Polygon{
		square(0.25, 0.25, 0.75, 0.75),
		square(2.5, -1, 4, 0.5),
		square(10, 10, 11, 11), // far away
	}
	const minDistance = 0.07

	checker := placement.NewChecker(parcel, restricted, minDistance)
	placed := []orb.Point{}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 20000; i++ {
		p := orb.Point{-0.5 + rnd.Float64()*4, -0.5 + rnd.Float64()*2}

		expected := placement.IsValid(p, parcel, placed, restricted, minDistance)
		verdict := checker.Check(p)
		if expected != (verdict == placement.Accepted) {
			t.Fatalf("candidate %v: reference says %v, checker says %s", p, expected, verdict)
		}
		if expected {
			placed = append(placed, p)
			checker.Add(p)
		}
	}

	if len(placed) < 10 {
		t.Fatalf("too few accepted points to compare: %d", len(placed))
	}
}

func TestCheckerVerdicts(t *testing.T) {
	checker := placement.NewChecker(orb.MultiPolygon{square(0, 0, 1, 1)}, []orb.Polygon{square(0.4, 0.4, 0.6, 0.6)}, 0.1)

	cases := []struct {
		p        orb.Point
		expected placement.Verdict
	}{
		{orb.Point{1.5, 0.5}, placement.OutsideParcel},
		{orb.Point{0.5, 0.5}, placement.Restricted},
		{orb.Point{0.4, 0.5}, placement.Restricted}, // restriction edge
		{orb.Point{0, 0.5}, placement.Accepted},     // parcel edge
		{orb.Point{0.05, 0.5}, placement.TooClose},
		{orb.Point{0.1, 0.5}, placement.Accepted}, // exactly min distance
	}

	for _, c := range cases {
		v := checker.Check(c.p)
		if v != c.expected {
			t.Fatalf("%v: expected %s, got %s", c.p, c.expected, v)
		}
		if v == placement.Accepted {
			checker.Add(c.p)
		}
	}
}

func TestIsValidOrder(t *testing.T) {
	parcel := orb.MultiPolygon{square(0, 0, 1, 1)}

	if !placement.IsValid(orb.Point{0.5, 0.5}, parcel, nil, nil, 0.1) {
		t.Fatalf("empty restrictions and no placed points must accept")
	}
	if placement.IsValid(orb.Point{0.5, 0.5}, parcel, []orb.Point{{0.55, 0.5}}, nil, 0.1) {
		t.Fatalf("close neighbour must reject")
	}
	if !placement.IsValid(orb.Point{0.5, 0.5}, parcel, []orb.Point{{0.6, 0.5}}, nil, 0.1) {
		t.Fatalf("neighbour at exactly min distance must accept")
	}
}
