package viz

import (
	"math"
	"strings"

	"github.com/san-kum/driveline/internal/geom"
)

// Braille cells are 2x4 dots:
// 1 4
// 2 5
// 3 6
// 7 8
const brailleBlank = 0x2800

var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a Braille dot grid mapped onto a rectangle of the field. Width and Height
// are in characters; the dot resolution is twice the width and four times the height.
type Canvas struct {
	Width, Height int
	grid          [][]rune

	min, max geom.Vector2
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		grid:   make([][]rune, h),
		min:    geom.Vec(-1, -1),
		max:    geom.Vec(1, 1),
	}
	for i := range c.grid {
		c.grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Fit sets the visible field region to cover every point plus margin feet, keeping
// the aspect ratio of the dot grid so the field is not stretched.
func (c *Canvas) Fit(points []geom.Vector2, margin float64) {
	if len(points) == 0 {
		return
	}
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo = geom.Vec(math.Min(lo.X, p.X), math.Min(lo.Y, p.Y))
		hi = geom.Vec(math.Max(hi.X, p.X), math.Max(hi.Y, p.Y))
	}

	// Terminal cells are about twice as tall as wide, so a dot is roughly square.
	dotsW, dotsH := float64(c.Width*2), float64(c.Height*4)
	span := math.Max(math.Max(hi.X-lo.X, hi.Y-lo.Y)+2*margin, 1)
	perDot := math.Max(span/dotsW, span/dotsH)
	center := lo.Add(hi).Scale(0.5)
	half := geom.Vec(perDot*dotsW/2, perDot*dotsH/2)
	c.min, c.max = center.Sub(half), center.Add(half)
}

// dot maps a field point to dot coordinates. Field y grows upward, dot y downward.
func (c *Canvas) dot(p geom.Vector2) (int, int) {
	dotsW, dotsH := float64(c.Width*2), float64(c.Height*4)
	x := (p.X - c.min.X) / (c.max.X - c.min.X) * dotsW
	y := (c.max.Y - p.Y) / (c.max.Y - c.min.Y) * dotsH
	return int(math.Floor(x)), int(math.Floor(y))
}

// Set turns on the dot at (x, y). Dots off the grid are ignored.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.grid[row][col] |= pixelMap[y%4][x%2]
}

func (c *Canvas) Clear() {
	for i := range c.grid {
		for j := range c.grid[i] {
			c.grid[i][j] = brailleBlank
		}
	}
}

// Plot marks a field point.
func (c *Canvas) Plot(p geom.Vector2) {
	c.Set(c.dot(p))
}

// Line joins two field points.
func (c *Canvas) Line(a, b geom.Vector2) {
	x0, y0 := c.dot(a)
	x1, y1 := c.dot(b)
	c.DrawLine(x0, y0, x1, y1)
}

// Robot draws the chassis footprint as a square of side size feet with a stroke from
// its center toward the heading.
func (c *Canvas) Robot(pos geom.Vector2, heading, size float64) {
	half := size / 2
	var corners [4]geom.Vector2
	for i, local := range []geom.Vector2{{X: -half, Y: half}, {X: half, Y: half}, {X: half, Y: -half}, {X: -half, Y: -half}} {
		corners[i] = pos.Add(geom.LocalToGlobal(local, heading))
	}
	for i := range corners {
		c.Line(corners[i], corners[(i+1)%len(corners)])
	}
	c.Line(pos, pos.Add(geom.Polar(size, heading)))
}

// DrawLine draws between dot coordinates using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
