package bitstream

import "github.com/zsiec/transmux/media"

// Buffer carries one encoded access unit from the encoder to the
// output stage. Data[DataOffset : DataOffset+DataLength] is the live
// payload; the backing array is recycled through the scheduler's
// free lists, so MaxLength tracks the usable capacity.
type Buffer struct {
	Data       []byte
	DataOffset int
	DataLength int
	MaxLength  int

	PTS      int64
	DTS      int64 // media.NoPTS when the encoder provides none
	Keyframe bool
	Type     PictureType
	Struct   PictureStruct
	Repeat   int
}

// NewBuffer allocates a buffer with the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		Data:      make([]byte, capacity),
		MaxLength: capacity,
		DTS:       media.NoPTS,
	}
}

// Fill copies payload into the buffer, growing it if needed, and
// resets offsets and per-frame metadata.
func (b *Buffer) Fill(payload []byte, pts, dts int64) {
	if b.MaxLength < len(payload) {
		b.Data = make([]byte, len(payload)*2)
		b.MaxLength = len(payload) * 2
	}
	copy(b.Data, payload)
	b.DataOffset = 0
	b.DataLength = len(payload)
	b.PTS = pts
	b.DTS = dts
	b.Keyframe = false
	b.Type = PictureNone
	b.Struct = StructFrame
	b.Repeat = 0
}

// Payload returns the live payload slice.
func (b *Buffer) Payload() []byte {
	return b.Data[b.DataOffset : b.DataOffset+b.DataLength]
}

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() {
	b.DataOffset = 0
	b.DataLength = 0
}
