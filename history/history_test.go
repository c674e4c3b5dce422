package history

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/wudi/inkclean/raster"
	"github.com/wudi/inkclean/tiling"
)

func testImage(seed int64) *raster.Image {
	img := raster.NewImage(8, 100, 3)
	rand.New(rand.NewSource(seed)).Read(img.Pix)
	return img
}

func scribble(img *raster.Image, start, end int, v uint8) {
	for y := start; y < end; y++ {
		row := img.Row(y)
		for i := range row {
			row[i] = v
		}
	}
}

func TestUndoRestoresCapturedRows(t *testing.T) {
	img := testImage(1)
	orig := img.Clone()
	m := New(5)

	e := m.Begin()
	if err := m.Capture(e, img, 10, 30); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if err := m.Capture(e, img, 60, 70); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	m.Commit(e)
	scribble(img, 10, 30, 0)
	scribble(img, 60, 70, 255)

	if m.Len() != 1 || m.Bytes() != 30*img.Stride() {
		t.Fatalf("len=%d bytes=%d", m.Len(), m.Bytes())
	}
	ranges, ok, err := m.Undo(img)
	if err != nil || !ok {
		t.Fatalf("Undo() = %v, %v", ok, err)
	}
	want := []tiling.Range{{Start: 10, End: 30}, {Start: 60, End: 70}}
	if !reflect.DeepEqual(ranges, want) {
		t.Fatalf("ranges = %v, want %v", ranges, want)
	}
	if !bytes.Equal(img.Pix, orig.Pix) {
		t.Fatalf("image not restored")
	}
	if m.Len() != 0 || m.Bytes() != 0 {
		t.Fatalf("stack not drained: len=%d bytes=%d", m.Len(), m.Bytes())
	}
}

func TestUndoEmptyStack(t *testing.T) {
	ranges, ok, err := New(3).Undo(testImage(2))
	if ranges != nil || ok || err != nil {
		t.Fatalf("Undo() on empty stack = %v, %v, %v", ranges, ok, err)
	}
}

func TestUndoIsStackOrdered(t *testing.T) {
	img := testImage(3)
	states := []*raster.Image{img.Clone()}
	m := New(10)
	for i := 0; i < 3; i++ {
		e := m.Begin()
		if err := m.Capture(e, img, 20, 40); err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		m.Commit(e)
		scribble(img, 20, 40, uint8(i+1))
		states = append(states, img.Clone())
	}
	for i := 2; i >= 0; i-- {
		if _, ok, err := m.Undo(img); !ok || err != nil {
			t.Fatalf("Undo() #%d = %v, %v", i, ok, err)
		}
		if !bytes.Equal(img.Pix, states[i].Pix) {
			t.Fatalf("state %d not restored", i)
		}
	}
}

func TestCommitEvictsOldest(t *testing.T) {
	img := testImage(4)
	m := New(2)
	for i := 0; i < 3; i++ {
		e := m.Begin()
		if err := m.Capture(e, img, i, i+1); err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		m.Commit(e)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
	r1, _, _ := m.Undo(img)
	r2, _, _ := m.Undo(img)
	if r1[0].Start != 2 || r2[0].Start != 1 {
		t.Fatalf("unexpected order after eviction: %v %v", r1, r2)
	}
	if _, ok, _ := m.Undo(img); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestCommitSkipsEmptyEntry(t *testing.T) {
	m := New(3)
	m.Commit(m.Begin())
	m.Commit(nil)
	if m.Len() != 0 {
		t.Fatalf("empty entries must not be pushed")
	}
}

func TestCaptureRejectsInvalidRanges(t *testing.T) {
	img := testImage(5)
	m := New(3)
	e := m.Begin()
	for _, r := range [][2]int{{-1, 5}, {5, 5}, {90, 101}, {10, 2}} {
		if err := m.Capture(e, img, r[0], r[1]); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("Capture(%v) = %v, want ErrInvalidRange", r, err)
		}
	}
	if !e.Empty() {
		t.Fatalf("rejected captures must not add patches")
	}
}

func TestUndoStalePatch(t *testing.T) {
	img := testImage(6)
	m := New(3)
	e := m.Begin()
	if err := m.Capture(e, img, 80, 100); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	m.Commit(e)
	smaller := raster.NewImage(8, 50, 3)
	if _, ok, err := m.Undo(smaller); !ok || !errors.Is(err, ErrStale) {
		t.Fatalf("Undo() = %v, %v, want ErrStale", ok, err)
	}
	if m.Len() != 0 {
		t.Fatalf("stale entry should be discarded")
	}
}

func TestReset(t *testing.T) {
	img := testImage(7)
	m := New(3)
	e := m.Begin()
	_ = m.Capture(e, img, 0, 10)
	m.Commit(e)
	m.Reset()
	if m.Len() != 0 || m.Bytes() != 0 {
		t.Fatalf("Reset() left len=%d bytes=%d", m.Len(), m.Bytes())
	}
}
