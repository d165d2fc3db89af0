package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-survey/internal/kmz"
)

// minSpanDegrees keeps a single-point document from collapsing the projection.
const minSpanDegrees = 0.001

// TermSurface draws a braille map for terminals. Each cell holds a 2x4 grid
// of micro pixels; markers are drawn over the grid as coloured glyphs.
type TermSurface struct {
	width, height int

	markers []Marker
	lines   []Polyline
	areas   []Polygon
	bound   *orb.Bound
	padding int
}

// NewTermSurface returns a surface of w x h character cells.
func NewTermSurface(w, h int) *TermSurface {
	if w < 8 {
		w = 8
	}
	if h < 4 {
		h = 4
	}
	return &TermSurface{width: w, height: h}
}

func (t *TermSurface) Clear() {
	t.markers, t.lines, t.areas, t.bound = nil, nil, nil, nil
}

func (t *TermSurface) AddMarker(m Marker)     { t.markers = append(t.markers, m) }
func (t *TermSurface) AddPolyline(l Polyline) { t.lines = append(t.lines, l) }
func (t *TermSurface) AddPolygon(p Polygon)   { t.areas = append(t.areas, p) }

func (t *TermSurface) FitBounds(b orb.Bound, paddingPx int) {
	t.bound = &b
	t.padding = paddingPx
}

// Len returns the number of primitives on the surface.
func (t *TermSurface) Len() int { return len(t.markers) + len(t.lines) + len(t.areas) }

// canvas is the braille buffer plus one colour per cell.
type canvas struct {
	w, h   int
	mask   [][]uint8
	colour [][]string
	glyph  [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h}
	c.mask = make([][]uint8, h)
	c.colour = make([][]string, h)
	c.glyph = make([][]rune, h)
	for i := 0; i < h; i++ {
		c.mask[i] = make([]uint8, w)
		c.colour[i] = make([]string, w)
		c.glyph[i] = make([]rune, w)
	}
	return c
}

// brailleBits maps a micro pixel (column, row) inside a cell to its dot.
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func (c *canvas) set(mx, my int, colour string) {
	if mx < 0 || my < 0 {
		return
	}
	cx, cy := mx/2, my/4
	if cx >= c.w || cy >= c.h {
		return
	}
	c.mask[cy][cx] |= brailleBits[mx%2][my%4]
	if c.colour[cy][cx] == "" {
		c.colour[cy][cx] = colour
	}
}

// line draws a Bresenham line; dash > 0 leaves gaps of dash micro pixels.
func (c *canvas) line(x0, y0, x1, y1 int, colour string, dash int) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	e := dx + dy
	for step := 0; ; step++ {
		if dash <= 0 || (step/dash)%2 == 0 {
			c.set(x0, y0, colour)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// projection maps lat/lng into micro pixel space.
type projection struct {
	b      orb.Bound
	mw, mh int
}

func (p projection) xy(ll kmz.LatLng) (int, int) {
	nx := (ll.Lng - p.b.Min.Lon()) / (p.b.Max.Lon() - p.b.Min.Lon())
	ny := (p.b.Max.Lat() - ll.Lat) / (p.b.Max.Lat() - p.b.Min.Lat())
	return int(nx * float64(p.mw-1)), int(ny * float64(p.mh-1))
}

func (t *TermSurface) extent() (orb.Bound, bool) {
	if t.bound != nil {
		return *t.bound, true
	}
	var bb kmz.BoundingBox
	for _, m := range t.markers {
		bb.Extend(m.Position)
	}
	for _, l := range t.lines {
		for _, p := range l.Points {
			bb.Extend(p)
		}
	}
	for _, a := range t.areas {
		for _, p := range a.Points {
			bb.Extend(p)
		}
	}
	return bb.Bound(), bb.Valid()
}

// String renders the map followed by a legend of task points.
func (t *TermSurface) String() string {
	b, ok := t.extent()
	if !ok {
		return "(nothing to draw)\n"
	}

	// Widen degenerate extents, then pad in proportion to the pixel padding.
	if span := b.Max.Lon() - b.Min.Lon(); span < minSpanDegrees {
		b = b.Extend(orb.Point{b.Min.Lon() - minSpanDegrees/2, b.Min.Lat()}).
			Extend(orb.Point{b.Max.Lon() + minSpanDegrees/2, b.Max.Lat()})
	}
	if span := b.Max.Lat() - b.Min.Lat(); span < minSpanDegrees {
		b = b.Extend(orb.Point{b.Min.Lon(), b.Min.Lat() - minSpanDegrees/2}).
			Extend(orb.Point{b.Max.Lon(), b.Max.Lat() + minSpanDegrees/2})
	}
	if t.padding > 0 {
		frac := float64(t.padding) / float64(t.width*2)
		b = b.Pad(frac * (b.Max.Lon() - b.Min.Lon()))
	}

	c := newCanvas(t.width, t.height)
	proj := projection{b: b, mw: t.width * 2, mh: t.height * 4}

	for _, a := range t.areas {
		drawPath(c, proj, a.Points, a.Style.Color, 3)
	}
	for _, l := range t.lines {
		drawPath(c, proj, l.Points, l.Style.Color, 4)
	}
	for _, m := range t.markers {
		x, y := proj.xy(m.Position)
		cx, cy := x/2, y/4
		if cx >= 0 && cy >= 0 && cx < t.width && cy < t.height {
			c.glyph[cy][cx] = markerGlyph(m.State)
			c.colour[cy][cx] = m.Style.FillColor
		}
	}

	var out strings.Builder
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			r := ' '
			switch {
			case c.glyph[y][x] != 0:
				r = c.glyph[y][x]
			case c.mask[y][x] != 0:
				r = rune(0x2800 + int(c.mask[y][x]))
			}
			if r != ' ' && c.colour[y][x] != "" {
				out.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.colour[y][x])).Render(string(r)))
			} else {
				out.WriteRune(r)
			}
		}
		out.WriteByte('\n')
	}

	for _, m := range t.markers {
		glyph := lipgloss.NewStyle().Foreground(lipgloss.Color(m.Style.FillColor)).Render(string(markerGlyph(m.State)))
		fmt.Fprintf(&out, "%s %-24s %-11s %.6f, %.6f\n", glyph, m.Name, m.Label, m.Position.Lat, m.Position.Lng)
	}
	return out.String()
}

func drawPath(c *canvas, p projection, points []kmz.LatLng, colour string, dash int) {
	for i := 1; i < len(points); i++ {
		x0, y0 := p.xy(points[i-1])
		x1, y1 := p.xy(points[i])
		c.line(x0, y0, x1, y1, colour, dash)
	}
}

func markerGlyph(s MarkerState) rune {
	switch s {
	case StateDone:
		return '✔'
	case StateAtLocation:
		return '◉'
	}
	return '●'
}
