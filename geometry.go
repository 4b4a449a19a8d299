package tasm

import "fmt"

// Intersects reports whether two rectangles overlap. Edges are closed:
// rectangles that only touch along an edge or a corner intersect. A
// rectangle with no area intersects nothing.
func Intersects(a, b Rectangle) bool {
	if a.Width <= 0 || a.Height <= 0 || b.Width <= 0 || b.Height <= 0 {
		return false
	}
	if a.X > b.X+b.Width || b.X > a.X+a.Width {
		return false
	}
	if a.Y > b.Y+b.Height || b.Y > a.Y+a.Height {
		return false
	}
	return true
}

// Intersects reports whether r overlaps other (see Intersects).
func (r Rectangle) Intersects(other Rectangle) bool {
	return Intersects(r, other)
}

// CropBox is a half-open pixel box [X1,X2) x [Y1,Y2) in tile-local space.
type CropBox struct {
	X1, Y1, X2, Y2 int
}

// Width returns the box width (0 when empty).
func (b CropBox) Width() int {
	return max(0, b.X2-b.X1)
}

// Height returns the box height (0 when empty).
func (b CropBox) Height() int {
	return max(0, b.Y2-b.Y1)
}

// Empty reports whether the box holds no pixel.
func (b CropBox) Empty() bool {
	return b.Width() == 0 || b.Height() == 0
}

// Clip restricts the box to a width x height raster.
func (b CropBox) Clip(width, height int) CropBox {
	c := CropBox{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
	if c.X2 < c.X1 {
		c.X2 = c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y2 = c.Y1
	}
	return c
}

// TranslateToTileLocal maps a global rectangle into the pixel space of the
// tile placed at tileRect. Only the top-left corner is clamped, so the box
// can still run past the tile; callers clip it against the decoded raster.
func TranslateToTileLocal(rect, tileRect Rectangle) CropBox {
	x1 := max(0, rect.X-tileRect.X)
	y1 := max(0, rect.Y-tileRect.Y)
	return CropBox{
		X1: x1,
		Y1: y1,
		X2: x1 + rect.Width,
		Y2: y1 + rect.Height,
	}
}

// Padding is the number of zero pixels added on each side of a crop.
type Padding struct {
	Left, Top, Right, Bottom int
}

// CenteredPad centers a rw x rh region on a cw x ch canvas. Odd slack goes
// to the right and bottom.
func CenteredPad(rw, rh, cw, ch int) (Padding, error) {
	if rw < 0 || rh < 0 || rw > cw || rh > ch {
		return Padding{}, fmt.Errorf("tasm: region %dx%d does not fit canvas %dx%d", rw, rh, cw, ch)
	}
	left := (cw - rw) / 2
	top := (ch - rh) / 2
	return Padding{
		Left:   left,
		Top:    top,
		Right:  cw - rw - left,
		Bottom: ch - rh - top,
	}, nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
