package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keel-agent/keel/config"
	"github.com/keel-agent/keel/tool"
)

// Session holds the durable state of one conversation: its identity,
// message history, and the environment the turn engine operates in.
type Session struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	WorkingDir string    `json:"working_dir"`
	Messages   []Message `json:"messages"`

	Registry *tool.Registry  `json:"-"`
	Config   *config.Project `json:"-"`
	Env      tool.Env        `json:"-"`

	mu sync.Mutex
}

// NewSession creates an empty session rooted at workingDir.
func NewSession(workingDir string, registry *tool.Registry, cfg *config.Project, env tool.Env) *Session {
	return &Session{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now(),
		WorkingDir: workingDir,
		Registry:   registry,
		Config:     cfg,
		Env:        env,
	}
}

// Append adds a message to the history.
func (s *Session) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
}

// History returns a snapshot of the message history.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Store persists session state so an interrupted turn can be resumed
// with its history intact.
type Store interface {
	Save(session *Session) error
}

// NullStore discards all saves.
type NullStore struct{}

func (NullStore) Save(*Session) error { return nil }

// FileStore persists sessions as JSON files in a directory, one file
// per session.
type FileStore struct {
	Dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

// Save writes the session's durable state. The write goes through a
// temp file so a crash mid-write never corrupts the previous snapshot.
func (fs *FileStore) Save(session *Session) error {
	session.mu.Lock()
	data, err := json.MarshalIndent(session, "", "  ")
	session.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}
	path := filepath.Join(fs.Dir, session.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session %s: %w", session.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing session %s: %w", session.ID, err)
	}
	return nil
}

// Load reads a previously saved session. The caller re-attaches the
// registry, config, and environment before resuming.
func (fs *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(fs.Dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &session, nil
}
