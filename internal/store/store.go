// Package store persists imported records and the active connection in a
// single JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

const (
	AppDirName    = "v2ray-mvp"
	StateFileName = "state.json"
)

var ErrNotFound = errors.New("config not found")

type Error struct {
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func notFound(id string) error {
	return &Error{
		AppError: model.AppError{
			Code:    "CONFIG_NOT_FOUND",
			Message: "Config not found",
			Stage:   "store",
			Snippet: id,
		},
		Cause: ErrNotFound,
	}
}

func ioError(message string, cause error) error {
	return &Error{
		AppError: model.AppError{
			Code:    "STATE_IO_ERROR",
			Message: message,
			Stage:   "store",
		},
		Cause: cause,
	}
}

// State is the on-disk document. The key names are shared with older
// installs and must not change.
type State struct {
	Configs          []model.Record `json:"configs"`
	ActiveConnection *string        `json:"active_connection"`
	EnginePID        *int32         `json:"v2ray_process"`
}

type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

// ResolveDir picks the data directory: the configured one, else the user
// config dir, else the working directory.
func ResolveDir(configured string) string {
	if configured != "" {
		return configured
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, AppDirName)
}

// Open loads dir/state.json. A missing or unreadable document starts an
// empty state; the file is only rewritten on the next change.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("创建数据目录失败", err)
	}
	s := &Store{path: filepath.Join(dir, StateFileName)}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		slog.Warn("读取状态文件失败，使用空状态", "path", s.path, "err", err)
	default:
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			slog.Warn("状态文件损坏，使用空状态", "path", s.path, "err", err)
		} else {
			s.state = st
		}
	}
	if s.state.Configs == nil {
		s.state.Configs = []model.Record{}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Dir() string { return filepath.Dir(s.path) }

// List returns a copy of all records in insertion order.
func (s *Store) List() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Configs)
}

func (s *Store) Get(id string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := lo.Find(s.state.Configs, func(r model.Record) bool { return r.ID == id })
	if !ok {
		return model.Record{}, notFound(id)
	}
	return r, nil
}

// Add appends r, assigning a random ID when r.ID is empty. Memory is left
// unchanged when the write fails.
func (s *Store) Add(r model.Record) (model.Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Configs = append(slices.Clone(s.state.Configs), r)
	if err := s.commit(next); err != nil {
		return model.Record{}, err
	}
	return r, nil
}

// Remove drops the record with id. Removing an unknown id is not an error.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Configs = lo.Filter(s.state.Configs, func(r model.Record, _ int) bool { return r.ID != id })
	return s.commit(next)
}

// Active reports the connected record id and engine pid, if any.
func (s *Store) Active() (id string, pid int32, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.ActiveConnection == nil {
		return "", 0, false
	}
	if s.state.EnginePID != nil {
		pid = *s.state.EnginePID
	}
	return *s.state.ActiveConnection, pid, true
}

func (s *Store) SetActive(id string, pid int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.ActiveConnection = &id
	next.EnginePID = &pid
	return s.commit(next)
}

func (s *Store) ClearActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.ActiveConnection = nil
	next.EnginePID = nil
	return s.commit(next)
}

// commit writes next and only then makes it the in-memory state.
// Caller holds s.mu.
func (s *Store) commit(next State) error {
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return ioError("序列化状态失败", err)
	}
	if err := writeFileAtomic(s.path, raw, 0o600); err != nil {
		return ioError("写入状态文件失败", err)
	}
	s.state = next
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
