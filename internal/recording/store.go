package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id has no active recording.
var ErrNotFound = errors.New("recording not found")

// Session is an in-progress call recording. Capture is purely local: the
// file under dir is the durable reference, so a recording outlives process
// restarts and works with no connectivity at all.
type Session struct {
	ID        string    `json:"recording_id"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Chunks    int       `json:"chunks"`

	file *os.File
}

// Store manages recording sessions on local disk. Start and Stop succeed
// offline; the resulting id is usable as a report's recording reference
// whether or not the backend ever hears about it.
type Store struct {
	dir string

	mu     sync.Mutex
	active map[string]*Session
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating recordings directory: %w", err)
	}
	return &Store{
		dir:    dir,
		active: make(map[string]*Session),
	}, nil
}

func (s *Store) Start() (*Session, error) {
	id := "rec_" + uuid.NewString()

	file, err := os.Create(filepath.Join(s.dir, id+".raw"))
	if err != nil {
		return nil, fmt.Errorf("error creating recording file: %w", err)
	}

	sess := &Session{
		ID:        id,
		StartedAt: time.Now(),
		file:      file,
	}

	s.mu.Lock()
	s.active[id] = sess
	s.mu.Unlock()

	return sess, nil
}

// Write appends a chunk of captured audio to an active session.
func (s *Store) Write(id string, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[id]
	if !ok {
		return ErrNotFound
	}
	if _, err := sess.file.Write(data); err != nil {
		return fmt.Errorf("error writing recording chunk: %w", err)
	}
	sess.Chunks++
	return nil
}

// Stop finalizes a session and returns the durable local reference. The
// session metadata is written next to the audio so the reference survives
// restart.
func (s *Store) Stop(id string) (string, error) {
	s.mu.Lock()
	sess, ok := s.active[id]
	if ok {
		delete(s.active, id)
	}
	s.mu.Unlock()

	if !ok {
		return "", ErrNotFound
	}

	sess.StoppedAt = time.Now()
	if err := sess.file.Close(); err != nil {
		return "", fmt.Errorf("error closing recording file: %w", err)
	}

	meta, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("error encoding recording metadata: %w", err)
	}
	metaPath := filepath.Join(s.dir, sess.ID+".json")
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return "", fmt.Errorf("error writing recording metadata: %w", err)
	}

	return sess.ID, nil
}

// Active reports how many sessions are currently recording.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
