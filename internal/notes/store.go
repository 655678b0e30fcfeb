// Package notes stores finished voice notes: the captured audio and its
// transcript, one timestamped pair per note.
package notes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Note is a stored voice note.
type Note struct {
	AudioPath      string
	TranscriptPath string
}

// Store writes notes under a base directory.
type Store struct {
	dir string
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow sets the time provider (for testing).
func WithNow(fn func() time.Time) StoreOption {
	return func(s *Store) { s.now = fn }
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save copies the session audio into the notes directory and writes the
// transcript beside it. An empty transcript writes no transcript file.
func (s *Store) Save(audioPath, transcript string) (Note, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil { // #nosec G301 -- user notes dir
		return Note{}, fmt.Errorf("create notes directory: %w", err)
	}

	stamp := s.now().Format("20060102_150405")
	note := Note{
		AudioPath: filepath.Join(s.dir, fmt.Sprintf("note_%s%s", stamp, filepath.Ext(audioPath))),
	}

	if err := copyFile(audioPath, note.AudioPath); err != nil {
		return Note{}, fmt.Errorf("store audio: %w", err)
	}

	if transcript != "" {
		note.TranscriptPath = filepath.Join(s.dir, fmt.Sprintf("note_%s.txt", stamp))
		if err := os.WriteFile(note.TranscriptPath, []byte(transcript+"\n"), 0644); err != nil { // #nosec G306 -- user notes file
			return Note{}, fmt.Errorf("store transcript: %w", err)
		}
	}

	return note, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- src is the session's own capture file
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 -- dst is inside the notes dir
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
