package placement

import (
	"rearrange/physics"
)

// FreeCells splits the padded surface into a (2*seed)^2 grid, doubling seed
// until some cell holds no body centroid, and returns the centres of the free
// cells in row-major order from the minimum corner. Cells include their low
// edges; the last row and column also include the far edge.
func FreeCells(s physics.State) ([]physics.Vec, error) {
	area := s.Padded()
	if area.Empty() {
		return nil, physics.ErrDegenerateSurface
	}
	centroids := s.Centroids()
	// with more cells than centroids some cell is always free
	for seed := 1; ; seed *= 2 {
		n := 2 * seed
		w, h := area.Width()/float64(n), area.Height()/float64(n)
		occupied := make([]bool, n*n)
		for _, c := range centroids {
			if !area.Contains(c) {
				continue
			}
			col := min(int((c.X-area.Min.X)/w), n-1)
			row := min(int((c.Y-area.Min.Y)/h), n-1)
			occupied[row*n+col] = true
		}
		var free []physics.Vec
		for row := range n {
			for col := range n {
				if occupied[row*n+col] {
					continue
				}
				free = append(free, physics.Vec{
					X: area.Min.X + (float64(col)+0.5)*w,
					Y: area.Min.Y + (float64(row)+0.5)*h,
				})
			}
		}
		if len(free) > 0 {
			return free, nil
		}
	}
}
