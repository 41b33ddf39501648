package geocode

import "github.com/twpayne/go-geom"

// Bounds is the service-area bounding box used to invalidate resolved
// locations that fall clearly outside the target region.
type Bounds struct {
	North float64
	South float64
	East  float64
	West  float64
}

// Contains reports whether the coordinate lies within the box.
func (b Bounds) Contains(lat, lng float64) bool {
	box := geom.NewBounds(geom.XY)
	box.Set(b.West, b.South, b.East, b.North)
	return box.OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}

// Zero reports whether the bounds are unset, in which case no location
// is rejected.
func (b Bounds) Zero() bool {
	return b.North == 0 && b.South == 0 && b.East == 0 && b.West == 0
}
