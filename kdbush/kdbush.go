// Package kdbush is a static 2D index over points that are known up front.
// It is built once and only queried afterwards.
package kdbush

import (
	"math"
)

// Point is an indexed position with attached data.
type Point[T any] struct {
	X, Y float64
	Data T
}

type KDBush[T any] struct {
	NodeSize int
	Points   []Point[T]

	idxs   []int     // point indexes in tree order
	coords []float64 // x,y pairs in tree order
}

const DefaultNodeSize = 64

func NewBush[T any](points []Point[T], nodeSize int) *KDBush[T] {
	if nodeSize <= 0 {
		nodeSize = DefaultNodeSize
	}
	b := KDBush[T]{}
	b.buildIndex(points, nodeSize)
	return &b
}

func (bush *KDBush[T]) Len() int {
	return len(bush.Points)
}

// Range finds all items within the given bounding box and returns indices
// into Points.
func (bush *KDBush[T]) Range(minX, minY, maxX, maxY float64) []int {
	result := []int{}
	var x, y float64

	bush.walk(func(left, right, axis int) (bool, bool) {
		if right-left <= bush.NodeSize {
			for i := left; i <= right; i++ {
				x = bush.coords[2*i]
				y = bush.coords[2*i+1]
				if x >= minX && x <= maxX && y >= minY && y <= maxY {
					result = append(result, bush.idxs[i])
				}
			}
			return false, false
		}

		m := middle(left, right)
		x = bush.coords[2*m]
		y = bush.coords[2*m+1]
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, bush.idxs[m])
		}

		if axis == 0 {
			return minX <= x, maxX >= x
		}
		return minY <= y, maxY >= y
	})

	return result
}

// Within calls handler with the index of every point no farther than radius
// from (qx, qy). Returning false from handler stops the search.
func (bush *KDBush[T]) Within(qx, qy float64, radius float64, handler func(i int) bool) {
	r2 := radius * radius
	stopped := false

	bush.walk(func(left, right, axis int) (bool, bool) {
		if stopped {
			return false, false
		}

		if right-left <= bush.NodeSize {
			for i := left; i <= right; i++ {
				if sqDist(bush.coords[2*i], bush.coords[2*i+1], qx, qy) <= r2 {
					if !handler(bush.idxs[i]) {
						stopped = true
						return false, false
					}
				}
			}
			return false, false
		}

		m := middle(left, right)
		x := bush.coords[2*m]
		y := bush.coords[2*m+1]

		if sqDist(x, y, qx, qy) <= r2 {
			if !handler(bush.idxs[m]) {
				stopped = true
				return false, false
			}
		}

		if axis == 0 {
			return qx-radius <= x, qx+radius >= x
		}
		return qy-radius <= y, qy+radius >= y
	})
}

// walk visits tree nodes depth first. visit reports whether the left and
// right halves of a node have to be descended into.
func (bush *KDBush[T]) walk(visit func(left, right, axis int) (goLeft, goRight bool)) {
	if len(bush.idxs) == 0 {
		return
	}

	stack := []int{0, len(bush.idxs) - 1, 0}
	for len(stack) > 0 {
		n := len(stack)
		left, right, axis := stack[n-3], stack[n-2], stack[n-1]
		stack = stack[:n-3]

		goLeft, goRight := visit(left, right, axis)
		if right-left <= bush.NodeSize {
			continue
		}

		m := middle(left, right)
		nextAxis := (axis + 1) % 2
		if goLeft {
			stack = append(stack, left, m-1, nextAxis)
		}
		if goRight {
			stack = append(stack, m+1, right, nextAxis)
		}
	}
}

func (bush *KDBush[T]) buildIndex(points []Point[T], nodeSize int) {
	bush.NodeSize = nodeSize
	bush.Points = points

	bush.idxs = make([]int, len(points))
	bush.coords = make([]float64, 2*len(points))

	for i, v := range points {
		bush.idxs[i] = i
		bush.coords[i*2] = v.X
		bush.coords[i*2+1] = v.Y
	}

	sortKD(bush.idxs, bush.coords, bush.NodeSize, 0, len(bush.idxs)-1, 0)
}

func sortKD(idxs []int, coords []float64, nodeSize int, left, right, depth int) {
	if (right - left) <= nodeSize {
		return
	}

	m := middle(left, right)

	sselect(idxs, coords, m, left, right, depth%2)

	sortKD(idxs, coords, nodeSize, left, m-1, depth+1)
	sortKD(idxs, coords, nodeSize, m+1, right, depth+1)
}

// sselect is Floyd-Rivest selection: it rearranges items so that the k-th
// one along axis inc sits at k with smaller ones to the left.
func sselect(idxs []int, coords []float64, k, left, right, inc int) {
	for right > left {
		if (right - left) > 600 {
			n := right - left + 1
			m := k - left + 1
			z := math.Log(float64(n))
			s := 0.5 * math.Exp(2.0*z/3.0)
			sds := 1.0
			if float64(m)-float64(n)/2.0 < 0 {
				sds = -1.0
			}
			sd := 0.5 * math.Sqrt(z*s*(float64(n)-s)/float64(n)) * sds
			newLeft := max(left, floor(float64(k)-float64(m)*s/float64(n)+sd))
			newRight := min(right, floor(float64(k)+float64(n-m)*s/float64(n)+sd))
			sselect(idxs, coords, k, newLeft, newRight, inc)
		}

		t := coords[2*k+inc]
		i := left
		j := right

		swapItem(idxs, coords, left, k)
		if coords[2*right+inc] > t {
			swapItem(idxs, coords, left, right)
		}

		for i < j {
			swapItem(idxs, coords, i, j)
			i++
			j--
			for coords[2*i+inc] < t {
				i++
			}
			for coords[2*j+inc] > t {
				j--
			}
		}

		if coords[2*left+inc] == t {
			swapItem(idxs, coords, left, j)
		} else {
			j++
			swapItem(idxs, coords, j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func swapItem(idxs []int, coords []float64, i, j int) {
	idxs[i], idxs[j] = idxs[j], idxs[i]
	coords[2*i], coords[2*j] = coords[2*j], coords[2*i]
	coords[2*i+1], coords[2*j+1] = coords[2*j+1], coords[2*i+1]
}

func middle(left, right int) int {
	return floor(float64(left+right) / 2.0)
}

func floor(in float64) int {
	return int(math.Floor(in))
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}
