package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// LocalStore はキー単位で文字列を保持する永続ストアのインターフェース。
// ブラウザのlocalStorageに相当する。未設定キーのGetは空文字列とnilを返す。
type LocalStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryLocalStore はプロセス内でのみ値を保持するLocalStore。
type MemoryLocalStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryLocalStore はMemoryLocalStoreを生成する。
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{values: make(map[string]string)}
}

func (s *MemoryLocalStore) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

func (s *MemoryLocalStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryLocalStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// FileLocalStore はJSONファイルにキーと値を保存するLocalStore。
// CLIの起動をまたいでトークンを保持するために使う。
// 書き込みは一時ファイル経由のrenameで行い、途中状態のファイルを残さない。
type FileLocalStore struct {
	mu   sync.Mutex
	path string
}

// NewFileLocalStore は指定パスを保存先とするFileLocalStoreを生成する。
// ファイルは最初の書き込み時に作成される。
func NewFileLocalStore(path string) *FileLocalStore {
	return &FileLocalStore{path: path}
}

func (s *FileLocalStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", err
	}
	return values[key], nil
}

func (s *FileLocalStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *FileLocalStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

// load はファイルを読み込む。ファイルが存在しない場合は空のマップを返す。
func (s *FileLocalStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local store %s: %w", s.path, err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse local store %s: %w", s.path, err)
	}
	return values, nil
}

// save はトークンを含むため所有者のみ読み書き可能な権限で書き込む。
func (s *FileLocalStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create local store directory: %w", err)
	}

	b, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode local store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("failed to write local store: %w", err)
	}

	if err := os.Rename(tmp, s.path); err == nil {
		return nil
	}
	defer os.Remove(tmp)

	if runtime.GOOS == "windows" {
		_ = os.Remove(s.path)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace local store: %w", err)
	}
	return nil
}
