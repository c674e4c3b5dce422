// Package history records the before-state of the rows an edit touched so the
// edit can be undone without keeping full image snapshots.
//
// Patches are keyed by row range only. A Manager does not notice when the
// image it was captured from is replaced, so callers must Reset it whenever
// they load a new image.
package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/tiling"
)

// DefaultDepth is the number of entries kept when New is given a
// non-positive depth.
const DefaultDepth = 20

var (
	// ErrInvalidRange is returned by Capture for ranges outside the image.
	ErrInvalidRange = errors.New("history: invalid row range")
	// ErrStale is returned by Undo when a patch no longer fits the image.
	// The offending entry is discarded.
	ErrStale = errors.New("history: patch does not fit image")
)

// Patch holds a copy of rows [RowStart, RowEnd) taken before an edit.
type Patch struct {
	RowStart int
	RowEnd   int
	Width    int
	Channels int
	Pix      []uint8
}

func (p Patch) Range() tiling.Range { return tiling.Range{Start: p.RowStart, End: p.RowEnd} }

// Entry groups the patches of one operation.
type Entry struct {
	patches []Patch
}

func (e *Entry) Patches() []Patch { return e.patches }

func (e *Entry) Empty() bool { return e == nil || len(e.patches) == 0 }

func (e *Entry) bytes() int {
	n := 0
	for _, p := range e.patches {
		n += len(p.Pix)
	}
	return n
}

// Manager is a bounded undo stack.
type Manager struct {
	mu       sync.Mutex
	maxDepth int
	entries  []*Entry
	size     int
}

func New(maxDepth int) *Manager {
	if maxDepth <= 0 {
		maxDepth = DefaultDepth
	}
	return &Manager{maxDepth: maxDepth}
}

// Begin returns an empty entry for the next operation.
func (m *Manager) Begin() *Entry { return &Entry{} }

// Capture appends a copy of rows [rowStart, rowEnd) of img to entry.
func (m *Manager) Capture(entry *Entry, img *raster.Image, rowStart, rowEnd int) error {
	if entry == nil {
		return errors.New("history: nil entry")
	}
	if img.Empty() || rowStart < 0 || rowEnd > img.Height || rowStart >= rowEnd {
		return fmt.Errorf("%w: [%d,%d) for height %d", ErrInvalidRange, rowStart, rowEnd, img.Height)
	}
	pix := make([]uint8, (rowEnd-rowStart)*img.Stride())
	copy(pix, img.Rows(rowStart, rowEnd))
	entry.patches = append(entry.patches, Patch{
		RowStart: rowStart,
		RowEnd:   rowEnd,
		Width:    img.Width,
		Channels: img.Channels,
		Pix:      pix,
	})
	return nil
}

// Commit pushes entry, evicting the oldest entries beyond the depth limit.
// Empty entries are dropped.
func (m *Manager) Commit(entry *Entry) {
	if entry.Empty() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	m.size += entry.bytes()
	for len(m.entries) > m.maxDepth {
		m.size -= m.entries[0].bytes()
		m.entries[0] = nil
		m.entries = m.entries[1:]
	}
}

// Undo pops the most recent entry and writes its patches back into img. It
// returns the restored ranges, or false when there is nothing to undo.
func (m *Manager) Undo(img *raster.Image) ([]tiling.Range, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, false, nil
	}
	last := len(m.entries) - 1
	entry := m.entries[last]
	m.entries[last] = nil
	m.entries = m.entries[:last]
	m.size -= entry.bytes()

	for _, p := range entry.patches {
		if img.Empty() || p.Width != img.Width || p.Channels != img.Channels || p.RowEnd > img.Height {
			return nil, true, fmt.Errorf("%w: rows %v", ErrStale, p.Range())
		}
	}
	ranges := make([]tiling.Range, 0, len(entry.patches))
	for _, p := range entry.patches {
		copy(img.Rows(p.RowStart, p.RowEnd), p.Pix)
		ranges = append(ranges, p.Range())
	}
	return ranges, true, nil
}

// Reset drops every entry.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.size = 0
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Bytes reports the pixel memory held by the stack.
func (m *Manager) Bytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}
