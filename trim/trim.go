// Package trim maps input timestamps through a list of kept frame
// ranges onto a continuous output timeline. All cut regions collapse to
// zero duration; timestamps inside a cut either fail or snap to the end
// of the last kept region, depending on the caller.
package trim

import (
	"errors"
	"fmt"

	"github.com/zsiec/transmux/media"
)

// ErrDroppedByTrim marks a timestamp that falls inside a cut region.
// It is a routing signal, not a failure: callers discard the packet.
var ErrDroppedByTrim = errors.New("timestamp dropped by trim")

// Range is an inclusive [Start, End] interval of kept input frame indices.
type Range struct {
	Start int
	End   int
}

// List is an ordered sequence of kept ranges.
type List []Range

// Validate checks that ranges are non-overlapping and strictly increasing.
func (l List) Validate() error {
	prevEnd := -1
	for i, r := range l {
		if r.Start > r.End {
			return fmt.Errorf("trim range %d: start %d > end %d", i, r.Start, r.End)
		}
		if r.Start <= prevEnd {
			return fmt.Errorf("trim range %d: start %d overlaps previous end %d", i, r.Start, prevEnd)
		}
		prevEnd = r.End
	}
	return nil
}

// Adjuster rescales timestamps between timebases while subtracting the
// cumulative duration of trimmed-away frames.
type Adjuster struct {
	FPS  media.Rational // output frame rate
	List List
}

// Adjust converts t from timebase in to timebase out on the trimmed
// timeline. With lastValidFrame false, a timestamp that falls before a
// kept range (i.e. inside a cut) returns ErrDroppedByTrim; with it
// true, the timestamp snaps to the last kept frame instead, which is
// what chapter remapping wants.
func (a *Adjuster) Adjust(t int64, in, out media.Rational, lastValidFrame bool) (int64, error) {
	fpsTB := a.FPS.Inv()
	frameIdx := int(media.Rescale(t, in, fpsTB))
	cut := 0
	if len(a.List) > 0 {
		lastFin := 0
		for _, r := range a.List {
			if frameIdx < r.Start {
				if !lastValidFrame {
					return 0, ErrDroppedByTrim
				}
				cut += frameIdx - lastFin
				lastFin = frameIdx
				break
			}
			cut += r.Start - lastFin
			if frameIdx <= r.End {
				lastFin = frameIdx
				break
			}
			lastFin = r.End
		}
		cut += frameIdx - lastFin
	}
	tsOut := media.Rescale(t, in, out)
	tsCut := media.Rescale(int64(cut), fpsTB, out)
	return tsOut - tsCut, nil
}
