package recording

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"livecast/internal/media"
)

// vp8Frame fabricates a minimal VP8 payload. Keyframes carry the start code
// and dimensions the muxer parses.
func vp8Frame(key bool, w, h uint16) []byte {
	if !key {
		return []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
	}
	return []byte{
		0x00, 0x00, 0x00,
		0x9D, 0x01, 0x2A,
		byte(w), byte(w >> 8),
		byte(h), byte(h >> 8),
		0xAA, 0xBB,
	}
}

type scriptedSource struct {
	frames [][]byte
	closed chan struct{}
}

func (s *scriptedSource) NewEncodedReader(mimeType string) (media.EncodedFrameReader, error) {
	return &scriptedReader{frames: s.frames, closed: s.closed}, nil
}

type scriptedReader struct {
	frames [][]byte
	i      int
	closed chan struct{}
}

func (r *scriptedReader) Read() ([]byte, func(), error) {
	if r.i >= len(r.frames) {
		// Block like a live encoder until the session closes the reader.
		<-r.closed
		return nil, nil, io.EOF
	}
	f := r.frames[r.i]
	r.i++
	return f, func() {}, nil
}

func (r *scriptedReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func TestEbmlVintBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x80}},
		{0x7E, []byte{0xFE}},
		{0x7F, []byte{0x40, 0x7F}},
		{0x3FFE, []byte{0x7F, 0xFE}},
		{0x3FFF, []byte{0x20, 0x3F, 0xFF}},
	}
	for _, c := range cases {
		if got := ebmlVint(c.v); !bytes.Equal(got, c.want) {
			t.Errorf("ebmlVint(%#x) = %x, want %x", c.v, got, c.want)
		}
	}
}

func TestEbmlUintMinimalEncoding(t *testing.T) {
	if got := ebmlUint(0); !bytes.Equal(got, []byte{0}) {
		t.Errorf("ebmlUint(0) = %x", got)
	}
	if got := ebmlUint(0x1234); !bytes.Equal(got, []byte{0x12, 0x34}) {
		t.Errorf("ebmlUint(0x1234) = %x", got)
	}
}

func TestSimpleBlockLayout(t *testing.T) {
	b := simpleBlock(1, 0, true, []byte{0xDE, 0xAD})
	// id, size, track vint, 2 byte timecode, flags, payload
	want := []byte{0xA3, 0x86, 0x81, 0x00, 0x00, 0x80, 0xDE, 0xAD}
	if !bytes.Equal(b, want) {
		t.Fatalf("simpleBlock = %x, want %x", b, want)
	}
}

func TestVP8HeaderParsing(t *testing.T) {
	key := vp8Frame(true, 1280, 720)
	if !vp8Keyframe(key) {
		t.Fatal("keyframe not detected")
	}
	w, h, ok := vp8Dimensions(key)
	if !ok || w != 1280 || h != 720 {
		t.Fatalf("dimensions = %dx%d, %v", w, h, ok)
	}
	if vp8Keyframe(vp8Frame(false, 0, 0)) {
		t.Fatal("delta frame flagged as keyframe")
	}
}

func TestRecorderWritesArtifact(t *testing.T) {
	src := &scriptedSource{
		frames: [][]byte{
			vp8Frame(false, 0, 0), // pre-keyframe frames are skipped
			vp8Frame(true, 640, 480),
			vp8Frame(false, 0, 0),
			vp8Frame(false, 0, 0),
		},
		closed: make(chan struct{}),
	}
	r := NewRecorder(t.TempDir())

	path, err := r.Start(src)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.ArtifactPath() != path {
		t.Fatalf("ArtifactPath = %q, want %q", r.ArtifactPath(), path)
	}

	// Give the drain goroutine time to consume the scripted frames.
	time.Sleep(50 * time.Millisecond)

	stopped, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped != path {
		t.Fatalf("Stop path = %q, want %q", stopped, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(data, idEBML) {
		t.Fatalf("artifact does not start with EBML header: %x", data[:8])
	}
	if !bytes.Contains(data, []byte("webm")) {
		t.Fatal("doc type missing")
	}
	if !bytes.Contains(data, []byte("V_VP8")) {
		t.Fatal("codec id missing")
	}
	// Three frames survive the keyframe gate, one cluster each.
	if n := bytes.Count(data, idCluster); n != 3 {
		t.Fatalf("clusters = %d, want 3", n)
	}

	if err := r.Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("artifact survived delete")
	}
}

func TestRestartSupersedesPreviousArtifact(t *testing.T) {
	r := NewRecorder(t.TempDir())
	first := &scriptedSource{closed: make(chan struct{})}
	firstPath, err := r.Start(first)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	second := &scriptedSource{closed: make(chan struct{})}
	secondPath, err := r.Start(second)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if secondPath == firstPath {
		t.Fatal("restart reused the artifact path")
	}
	if _, err := os.Stat(firstPath); !os.IsNotExist(err) {
		t.Fatal("previous artifact must be removed on restart")
	}
	if _, err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecorder(t.TempDir())
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
}
