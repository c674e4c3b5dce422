package morph

import (
	"image"

	"github.com/wudi/inkclean/raster"
)

// Component is one 8-connected foreground region.
type Component struct {
	Label  int
	Area   int
	Bounds image.Rectangle
}

// Label assigns a 1-based label to every 8-connected foreground region of m.
// Background samples are labelled 0.
func Label(m *raster.Mask) ([]int32, []Component) {
	w, h := m.Width, m.Height
	labels := make([]int32, w*h)
	var comps []Component
	var stack []int
	for start, v := range m.Pix {
		if v == 0 || labels[start] != 0 {
			continue
		}
		id := int32(len(comps) + 1)
		c := Component{Label: int(id), Bounds: image.Rect(start%w, start/w, start%w+1, start/w+1)}
		labels[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			c.Area++
			c.Bounds = c.Bounds.Union(image.Rect(x, y, x+1, y+1))
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					j := ny*w + nx
					if m.Pix[j] != 0 && labels[j] == 0 {
						labels[j] = id
						stack = append(stack, j)
					}
				}
			}
		}
		comps = append(comps, c)
	}
	return labels, comps
}

// KeepLarger returns a mask holding only the components whose area is
// strictly greater than minArea.
func KeepLarger(m *raster.Mask, minArea int) *raster.Mask {
	labels, comps := Label(m)
	keep := make([]bool, len(comps)+1)
	for _, c := range comps {
		keep[c.Label] = c.Area > minArea
	}
	out := raster.NewMask(m.Width, m.Height)
	for i, l := range labels {
		if l != 0 && keep[l] {
			out.Pix[i] = 0xff
		}
	}
	return out
}

// FillHoles sets every background sample that is not 4-connected to the mask
// border, closing the counters of glyphs such as "o" or "ㅇ".
func FillHoles(m *raster.Mask) *raster.Mask {
	w, h := m.Width, m.Height
	out := m.Binarize(0)
	if w == 0 || h == 0 {
		return out
	}
	outside := make([]bool, w*h)
	var stack []int
	push := func(i int) {
		if out.Pix[i] == 0 && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
	for i := range out.Pix {
		if !outside[i] {
			out.Pix[i] = 0xff
		}
	}
	return out
}
