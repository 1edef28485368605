// Package recording writes a local WebM copy of the outgoing broadcast,
// fed by a second encoder reader running beside the publication path.
package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"livecast/internal/media"
)

var ErrNotRecording = errors.New("recording: not started")

type Recorder struct {
	dir string

	mu   sync.Mutex
	sess *fileSession
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Start begins writing frames from the source into a fresh artifact file.
// A recording already in progress is stopped first.
func (r *Recorder) Start(src media.EncodedSource) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		r.sess.stop()
		// A new recording supersedes the previous artifact.
		if err := r.Delete(r.sess.path); err != nil {
			log.Warn().Err(err).Str("module", "recording").Msg("stale artifact")
		}
		r.sess = nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("recording dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("recording-%s.webm", uuid.NewString()))

	reader, err := src.NewEncodedReader(webrtc.MimeTypeVP8)
	if err != nil {
		return "", fmt.Errorf("recording reader: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		reader.Close()
		return "", fmt.Errorf("recording file: %w", err)
	}

	sess := &fileSession{
		path:   path,
		file:   f,
		reader: reader,
		done:   make(chan struct{}),
	}
	go sess.run()
	r.sess = sess
	log.Info().Str("module", "recording").Str("path", path).Msg("recording started")
	return path, nil
}

// Stop finishes the current recording and returns the artifact path.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return "", ErrNotRecording
	}
	path := r.sess.path
	r.sess.stop()
	r.sess = nil
	log.Info().Str("module", "recording").Str("path", path).Msg("recording stopped")
	return path, nil
}

// ArtifactPath returns the path of the recording in progress, or "".
func (r *Recorder) ArtifactPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil {
		return ""
	}
	return r.sess.path
}

// Delete removes a finished artifact from disk.
func (r *Recorder) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("recording delete: %w", err)
	}
	return nil
}

// fileSession drains one encoded reader into one WebM file.
type fileSession struct {
	path   string
	file   *os.File
	reader media.EncodedFrameReader
	done   chan struct{}

	once sync.Once

	wroteInit bool
	started   time.Time
	haveBase  bool
}

func (s *fileSession) stop() {
	s.once.Do(func() {
		// Closing the reader unblocks the run loop's Read.
		if err := s.reader.Close(); err != nil {
			log.Warn().Err(err).Str("module", "recording").Msg("reader close")
		}
		<-s.done
	})
}

func (s *fileSession) run() {
	defer close(s.done)
	defer func() {
		if err := s.file.Close(); err != nil {
			log.Warn().Err(err).Str("module", "recording").Msg("file close")
		}
	}()

	for {
		data, release, err := s.reader.Read()
		if err != nil {
			return
		}
		s.writeFrame(data)
		if release != nil {
			release()
		}
	}
}

// writeFrame waits for the first keyframe, emits the init segment with the
// dimensions parsed from it, then writes one cluster per frame.
func (s *fileSession) writeFrame(data []byte) {
	key := vp8Keyframe(data)

	if !s.wroteInit {
		if !key {
			return
		}
		w, h, ok := vp8Dimensions(data)
		if !ok {
			w, h = 640, 480
		}
		if _, err := s.file.Write(initSegment(w, h)); err != nil {
			log.Error().Err(err).Str("module", "recording").Msg("write init segment")
			return
		}
		s.wroteInit = true
		s.started = time.Now()
		s.haveBase = true
		log.Info().Str("module", "recording").Uint16("width", w).Uint16("height", h).Msg("init segment written")
	}

	var tsMs int64
	if s.haveBase {
		tsMs = time.Since(s.started).Milliseconds()
	}
	block := simpleBlock(1, 0, key, data)
	if _, err := s.file.Write(cluster(tsMs, block)); err != nil {
		log.Error().Err(err).Str("module", "recording").Msg("write cluster")
	}
}
