package kdbush_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/royalcat/autobuild/kdbush"
)

func randomPoints(n int, seed int64) []kdbush.Point[int] {
	rnd := rand.New(rand.NewSource(seed))
	points := make([]kdbush.Point[int], n)
	for i := range points {
		points[i] = kdbush.Point[int]{X: rnd.Float64() * 100, Y: rnd.Float64() * 100, Data: i}
	}
	return points
}

func TestRange(t *testing.T) {
	points := randomPoints(2000, 1)
	bush := kdbush.NewBush(points, 16)

	got := bush.Range(20, 30, 50, 45)
	sort.Ints(got)

	expected := []int{}
	for i, p := range points {
		if p.X >= 20 && p.X <= 50 && p.Y >= 30 && p.Y <= 45 {
			expected = append(expected, i)
		}
	}

	if len(got) != len(expected) {
		t.Fatalf("expected %d points, got %d", len(expected), len(got))
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("mismatch at %d: expected %d, got %d", i, expected[i], got[i])
		}
	}
}

func TestWithin(t *testing.T) {
	points := randomPoints(2000, 2)
	bush := kdbush.NewBush(points, 0)

	const qx, qy, r = 40.0, 60.0, 7.5

	found := map[int]bool{}
	bush.Within(qx, qy, r, func(i int) bool {
		found[i] = true
		return true
	})

	for i, p := range points {
		inside := (p.X-qx)*(p.X-qx)+(p.Y-qy)*(p.Y-qy) <= r*r
		if inside != found[i] {
			t.Fatalf("point %d %v: expected %v", i, p, inside)
		}
		if found[i] && bush.Points[i].Data != i {
			t.Fatalf("point %d carries wrong data", i)
		}
	}
}

func TestWithinStops(t *testing.T) {
	bush := kdbush.NewBush(randomPoints(500, 3), 8)

	calls := 0
	bush.Within(50, 50, 100, func(int) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Fatalf("expected the search to stop after one hit, got %d", calls)
	}
}

func TestEmpty(t *testing.T) {
	bush := kdbush.NewBush[int](nil, 8)
	if len(bush.Range(0, 0, 1, 1)) != 0 {
		t.Fatalf("empty index returned points")
	}
	bush.Within(0, 0, 1, func(int) bool {
		t.Fatalf("empty index called handler")
		return false
	})
}
