package trim

import (
	"errors"
	"testing"

	"github.com/zsiec/transmux/media"
)

func TestListValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		list List
		ok   bool
	}{
		{"empty", nil, true},
		{"single", List{{0, 99}}, true},
		{"increasing", List{{0, 99}, {200, 299}}, true},
		{"overlap", List{{0, 99}, {50, 150}}, false},
		{"inverted", List{{10, 5}}, false},
		{"touching", List{{0, 99}, {99, 150}}, false},
	}
	for _, tc := range cases {
		if err := tc.list.Validate(); (err == nil) != tc.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestAdjustNoTrim(t *testing.T) {
	t.Parallel()
	a := &Adjuster{FPS: media.R(30, 1)}
	tb := media.R(1, 90000)
	for _, ts := range []int64{0, 3000, 90000, 123456} {
		got, err := a.Adjust(ts, tb, tb, false)
		if err != nil {
			t.Fatalf("Adjust(%d): %v", ts, err)
		}
		if got != ts {
			t.Errorf("Adjust(%d) = %d, want identity with empty trim", ts, got)
		}
	}
}

func TestAdjustDropInGap(t *testing.T) {
	t.Parallel()
	// Keep frames [100,199]; frame 50 lies in the cut before the kept
	// range, which is the drop case.
	a := &Adjuster{FPS: media.R(30, 1), List: List{{100, 199}}}
	fpsTB := media.R(1, 30)
	if _, err := a.Adjust(50, fpsTB, fpsTB, false); !errors.Is(err, ErrDroppedByTrim) {
		t.Fatalf("frame 50 before kept range: err = %v, want ErrDroppedByTrim", err)
	}
	// With lastValidFrame the same timestamp snaps instead of failing.
	got, err := a.Adjust(50, fpsTB, fpsTB, true)
	if err != nil {
		t.Fatalf("lastValidFrame: %v", err)
	}
	if got != 0 {
		t.Errorf("snapped timestamp = %d, want 0", got)
	}
}

func TestAdjustShiftsPastCut(t *testing.T) {
	t.Parallel()
	// Trim [150, end] at 30 fps: everything shifts left by 150 frames.
	a := &Adjuster{FPS: media.R(30, 1), List: List{{150, 1 << 30}}}
	fpsTB := media.R(1, 30)
	got, err := a.Adjust(300, fpsTB, fpsTB, false)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got != 150 {
		t.Errorf("frame 300 with [150,∞] trim = %d, want 150", got)
	}
}

func TestAdjustChapterScenario(t *testing.T) {
	t.Parallel()
	// Chapters at t=0 and t=10s with trim [150, end] at 30 fps:
	// chapter A's 0..5s window collapses; chapter B's start lands at 5s.
	a := &Adjuster{FPS: media.R(30, 1), List: List{{150, 1 << 30}}}
	tb := media.R(1, 1000) // chapter timebase ms
	start, err := a.Adjust(0, tb, tb, true)
	if err != nil {
		t.Fatalf("chapter A start: %v", err)
	}
	if start != 0 {
		t.Errorf("chapter A start = %d, want 0", start)
	}
	endA, err := a.Adjust(5000, tb, tb, true)
	if err != nil {
		t.Fatalf("chapter A end: %v", err)
	}
	if endA != 0 {
		t.Errorf("chapter A end = %d, want 0 (collapsed by trim)", endA)
	}
	startB, err := a.Adjust(10000, tb, tb, true)
	if err != nil {
		t.Fatalf("chapter B start: %v", err)
	}
	if startB != 5000 {
		t.Errorf("chapter B start = %d, want 5000", startB)
	}
}

func TestAdjustRescalesBetweenTimebases(t *testing.T) {
	t.Parallel()
	a := &Adjuster{FPS: media.R(30, 1)}
	got, err := a.Adjust(90000, media.R(1, 90000), media.R(1, 1000), false)
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if got != 1000 {
		t.Errorf("1s in 90k → ms = %d, want 1000", got)
	}
}
