package rtclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/smallnest/ringbuffer"
)

// AudioIO bridges an application's audio device rates to the protocol's
// 24kHz PCM16 mono format. The user side reads and writes at the device
// sample rate; both directions are resampled through blocking ring buffers.
type AudioIO struct {
	userBuffer        *ringbuffer.RingBuffer
	agentBuffer       *ringbuffer.RingBuffer
	userInputWriter   io.Writer // userInputWriter is where to write audio to the agent.
	userOutputReader  io.Reader // userOutputReader is where to read audio from the agent.
	agentInputReader  io.Reader // agentInputReader is where to read audio from the user.
	agentOutputWriter io.Writer // agentOutputWriter is where to write audio to the user.
}

func NewAudioIO(userSampleRate int, latency time.Duration) *AudioIO {

	userBufferSize := getChunkSize(24_000, latency, 2, 1) * 2
	userBuffer := ringbuffer.New(userBufferSize).SetBlocking(true)

	agentBufferSize := getChunkSize(24_000, 60*time.Second, 2, 1) * 2
	agentBuffer := ringbuffer.New(agentBufferSize).SetBlocking(true)

	return &AudioIO{
		userBuffer: userBuffer,
		// agent
		agentBuffer:      agentBuffer,
		agentInputReader: newChunkReader(userBuffer, 24_000, latency),
		agentOutputWriter: &ResampleWriter{
			Sink:     agentBuffer,
			FromRate: 24_000,
			ToRate:   userSampleRate,
		},
		// user
		userOutputReader: newChunkReader(agentBuffer, userSampleRate, latency),
		userInputWriter: &ResampleWriter{
			Sink:     userBuffer,
			FromRate: userSampleRate,
			ToRate:   24_000,
		},
	}
}

// User returns the application-facing pair: read agent audio from the
// reader, write microphone audio to the writer.
func (a *AudioIO) User() (io.Reader, io.Writer) {
	return a.userOutputReader, a.userInputWriter
}

// AgentWriter is where decoded response audio chunks go.
func (a *AudioIO) AgentWriter() io.Writer {
	return a.agentOutputWriter
}

// ClearOutputBuffer drops buffered agent audio, for barge-in: when the user
// starts speaking, pending playback is stale.
func (a *AudioIO) ClearOutputBuffer() {
	a.agentBuffer.Reset()
}

// CloseInput marks the end of user audio. A running PumpAudio drains what is
// already buffered and returns.
func (a *AudioIO) CloseInput() {
	a.userBuffer.CloseWriter()
}

func newChunkReader(r io.Reader, sampleRate int, latency time.Duration) io.Reader {
	return NewFixedAudioChunkReader(r, sampleRate, latency, 2, 1)
}

// NewAudioIO builds audio plumbing for the client's configured sample rate
// and chunk latency.
func (c *Client) NewAudioIO() *AudioIO {
	return NewAudioIO(c.config.sampleRate, c.config.latency())
}

// PumpAudio reads fixed-latency chunks of user audio from the AudioIO and
// appends them to the session's input buffer until the context ends or the
// user side is closed.
func (c *Client) PumpAudio(ctx context.Context, a *AudioIO) error {
	chunkSize := getChunkSize(24_000, c.config.latency(), 2, 1)
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := a.agentInputReader.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read user audio: %w", err)
		}
		if err := c.SendAudio(ctx, buf[:n]); err != nil {
			return err
		}
	}
}

// FixedChunkReader re-slices an io.Reader into chunks of a fixed byte size;
// only the final chunk before EOF may be shorter.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	chunkSize int
	eof       bool
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
	}
}

func getChunkSize(sampleRate int, sampleDuration time.Duration, bytesPerSample int, channels int) int {
	frames := int(float64(sampleRate) * sampleDuration.Seconds())
	chunkSize := frames * bytesPerSample * channels
	return chunkSize
}

func NewFixedAudioChunkReader(
	r io.Reader,
	sampleRate int,
	latency time.Duration,
	bytesPerSample int,
	channels int,
) *FixedChunkReader {
	return NewFixedChunkReader(r, getChunkSize(sampleRate, latency, bytesPerSample, channels))
}

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	// Fill internal buffer until we can emit a full chunk or reach EOF
	for len(f.buf) < f.chunkSize && !f.eof {
		tmp := make([]byte, f.chunkSize)
		n, err := f.r.Read(tmp)
		if n > 0 {
			f.buf = append(f.buf, tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	// Determine how much to copy (either a full chunk, or the remaining)
	n := f.chunkSize
	if len(f.buf) < f.chunkSize {
		n = len(f.buf)
	}

	copy(p, f.buf[:n])
	f.buf = f.buf[n:]

	return n, nil
}
