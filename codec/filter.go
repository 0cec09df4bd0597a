package codec

import "github.com/zsiec/transmux/media"

// Gain is the built-in audio filter: scales sample amplitude by a
// constant factor. It satisfies Filter and serves as the reference
// 1-in/1-out filter implementation.
type Gain struct {
	Factor float64

	ready []*media.Frame
}

// NewGain returns a gain filter with the given linear factor.
func NewGain(factor float64) *Gain { return &Gain{Factor: factor} }

// Push scales the frame and queues it for Drain. A nil frame flushes;
// gain holds no tail, so flushing queues nothing.
func (g *Gain) Push(f *media.Frame) error {
	if f == nil {
		return nil
	}
	ch := toFloat(f)
	for c := range ch {
		for i := range ch[c] {
			ch[c][i] *= g.Factor
		}
	}
	out := fromFloat(ch, f.NbSamples, ResampleParams{
		Channels:   f.Channels,
		Layout:     f.Layout,
		SampleRate: f.SampleRate,
		Format:     f.Format,
	})
	out.PTS = f.PTS
	g.ready = append(g.ready, out)
	return nil
}

// Drain pops the next ready frame, or nil when dry.
func (g *Gain) Drain() (*media.Frame, error) {
	if len(g.ready) == 0 {
		return nil, nil
	}
	f := g.ready[0]
	g.ready = g.ready[1:]
	return f, nil
}

// Close discards any queued frames.
func (g *Gain) Close() error {
	g.ready = nil
	return nil
}
