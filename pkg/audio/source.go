package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Capture defaults.
const (
	DefaultSampleRate = 16000
	DefaultBlockSize  = 1024
)

// Chunk is a block of mono PCM16 samples.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// FromBytes decodes little-endian PCM16.
func FromBytes(data []byte, sampleRate int) Chunk {
	c := Chunk{SampleRate: sampleRate, Samples: make([]int16, len(data)/2)}
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return c
}

// Source produces audio chunks.
type Source interface {
	// Read blocks for the next chunk. It returns io.EOF once the source has
	// been closed or its device went away.
	Read(ctx context.Context) (Chunk, error)
	Close() error
}

// ExecSource captures from an ALSA device through an "arecord" process.
type ExecSource struct {
	device     string
	sampleRate int
	blockSize  int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	r      *bufio.Reader
	buf    []byte
}

// NewExecSource starts arecord on device (e.g. "default", "plughw:1,0").
func NewExecSource(ctx context.Context, device string) (*ExecSource, error) {
	if device == "" {
		device = "default"
	}
	s := &ExecSource{
		device:     device,
		sampleRate: DefaultSampleRate,
		blockSize:  DefaultBlockSize,
	}

	s.cmd = exec.CommandContext(ctx, "arecord",
		"-q",
		"-D", device,
		"-f", "S16_LE",
		"-c", "1",
		"-r", strconv.Itoa(s.sampleRate),
		"-t", "raw",
	)
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start arecord on %s: %w", device, err)
	}

	s.stdout = stdout
	s.r = bufio.NewReaderSize(stdout, s.blockSize*4)
	s.buf = make([]byte, s.blockSize*2)
	return s, nil
}

func (s *ExecSource) Read(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil {
		return Chunk{}, io.EOF
	}
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return Chunk{}, err
	}
	return FromBytes(s.buf, s.sampleRate), nil
}

func (s *ExecSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.r = nil
	return nil
}

// MockSource replays a fixed list of chunks, then reports io.EOF.
type MockSource struct {
	mu     sync.Mutex
	chunks []Chunk
	closed bool
}

// NewMockSource creates a mock source that yields chunks in order.
func NewMockSource(chunks ...Chunk) *MockSource {
	return &MockSource{chunks: chunks}
}

// Push queues another chunk.
func (m *MockSource) Push(c Chunk) {
	m.mu.Lock()
	m.chunks = append(m.chunks, c)
	m.mu.Unlock()
}

func (m *MockSource) Read(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(m.chunks) == 0 {
		return Chunk{}, io.EOF
	}
	c := m.chunks[0]
	m.chunks = m.chunks[1:]
	return c, nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Tone returns a chunk of n samples at constant amplitude (0..1).
func Tone(n int, amplitude float64) Chunk {
	c := Chunk{SampleRate: DefaultSampleRate, Samples: make([]int16, n)}
	v := int16(amplitude * 32767)
	for i := range c.Samples {
		if i%2 == 0 {
			c.Samples[i] = v
		} else {
			c.Samples[i] = -v
		}
	}
	return c
}
