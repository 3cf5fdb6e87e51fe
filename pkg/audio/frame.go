package audio

// FrameMs is the packet duration used on the WebRTC leg.
const FrameMs = 20

// FrameSamples is the number of mono samples in one frame at RateOpus.
const FrameSamples = RateOpus * FrameMs / 1000

// Framer slices a PCM stream into fixed size frames. Writes of any size are
// accepted; complete frames are returned as they fill.
//
// Not safe for concurrent use.
type Framer struct {
	size int
	buf  []int16
}

// NewFramer returns a Framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size}
}

// Write appends samples and returns any complete frames.
func (f *Framer) Write(samples []int16) [][]int16 {
	f.buf = append(f.buf, samples...)

	var frames [][]int16
	for len(f.buf) >= f.size {
		frame := make([]int16, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[f.size:]
	}
	return frames
}

// Flush returns the buffered remainder padded with silence, or nil if empty.
func (f *Framer) Flush() []int16 {
	if len(f.buf) == 0 {
		return nil
	}
	frame := make([]int16, f.size)
	copy(frame, f.buf)
	f.buf = f.buf[:0]
	return frame
}

// Reset discards buffered samples.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Buffered returns the number of samples waiting for a full frame.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
