package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxPacketBytes bounds a single encoded Opus packet.
const maxPacketBytes = 4000

// Decoder turns Opus RTP payloads into PCM16 at a target rate.
type Decoder struct {
	dec  *opus.Decoder
	rate int
	pcm  []int16
}

// NewDecoder creates a mono decoder that resamples output to rate.
func NewDecoder(rate int) (*Decoder, error) {
	dec, err := opus.NewDecoder(RateOpus, 1)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	// 120ms is the longest Opus frame.
	return &Decoder{dec: dec, rate: rate, pcm: make([]int16, RateOpus*120/1000)}, nil
}

// Decode decodes one packet and returns little-endian PCM16 bytes.
func (d *Decoder) Decode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(payload, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return SamplesToBytes(Resample(d.pcm[:n], RateOpus, d.rate)), nil
}

// Encoder turns PCM16 at any rate into 20ms Opus packets.
type Encoder struct {
	enc    *opus.Encoder
	framer *Framer
	out    []byte
}

// NewEncoder creates a mono VoIP encoder.
func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(RateOpus, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return &Encoder{enc: enc, framer: NewFramer(FrameSamples), out: make([]byte, maxPacketBytes)}, nil
}

// Encode accepts PCM16 bytes at sampleRate and returns zero or more
// complete packets. Partial frames are held until the next call or Flush.
func (e *Encoder) Encode(pcm []byte, sampleRate int) ([][]byte, error) {
	samples := Resample(BytesToSamples(pcm), sampleRate, RateOpus)
	return e.encodeFrames(e.framer.Write(samples))
}

// Flush encodes any held samples padded with silence.
func (e *Encoder) Flush() ([][]byte, error) {
	frame := e.framer.Flush()
	if frame == nil {
		return nil, nil
	}
	return e.encodeFrames([][]int16{frame})
}

// Reset drops held samples, used when playback is interrupted.
func (e *Encoder) Reset() {
	e.framer.Reset()
}

func (e *Encoder) encodeFrames(frames [][]int16) ([][]byte, error) {
	packets := make([][]byte, 0, len(frames))
	for _, f := range frames {
		n, err := e.enc.Encode(f, e.out)
		if err != nil {
			return packets, fmt.Errorf("opus encode: %w", err)
		}
		pkt := make([]byte, n)
		copy(pkt, e.out[:n])
		packets = append(packets, pkt)
	}
	return packets, nil
}
