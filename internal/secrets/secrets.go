// Package secrets remembers the API token issued by each server.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

// Store maps a server URL to its token.
type Store interface {
	Token(server string) (string, bool, error)
	SetToken(server, token string) error
	RemoveToken(server string) error
	Servers() ([]string, error)
}

// File keeps tokens in a TOML file readable only by the owner.
type File struct {
	path string
	mu   sync.Mutex
}

type fileContents struct {
	Servers map[string]serverEntry `toml:"servers"`
}

type serverEntry struct {
	Token string `toml:"token"`
}

// NewFile returns a store backed by path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Token(server string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, err := f.read()
	if err != nil {
		return "", false, err
	}
	entry, ok := contents.Servers[normalize(server)]
	if !ok || entry.Token == "" {
		return "", false, nil
	}
	return entry.Token, true, nil
}

func (f *File) SetToken(server, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, err := f.read()
	if err != nil {
		return err
	}
	contents.Servers[normalize(server)] = serverEntry{Token: token}
	return f.write(contents)
}

func (f *File) RemoveToken(server string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, err := f.read()
	if err != nil {
		return err
	}
	key := normalize(server)
	if _, ok := contents.Servers[key]; !ok {
		return nil
	}
	delete(contents.Servers, key)
	return f.write(contents)
}

func (f *File) Servers() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	contents, err := f.read()
	if err != nil {
		return nil, err
	}
	return sortedKeys(contents.Servers), nil
}

func (f *File) read() (fileContents, error) {
	contents := fileContents{Servers: make(map[string]serverEntry)}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contents, nil
		}
		return contents, fmt.Errorf("read secrets: %w", err)
	}
	if err := toml.Unmarshal(data, &contents); err != nil {
		return contents, fmt.Errorf("parse secrets: %w", err)
	}
	// Files written by hand may use any spelling of a server URL.
	servers := make(map[string]serverEntry, len(contents.Servers))
	for server, entry := range contents.Servers {
		servers[normalize(server)] = entry
	}
	contents.Servers = servers
	return contents, nil
}

func (f *File) write(contents fileContents) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}
	data, err := toml.Marshal(contents)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace secrets: %w", err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Token(server string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[normalize(server)]
	return token, ok && token != "", nil
}

func (m *Memory) SetToken(server, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[normalize(server)] = token
	return nil
}

func (m *Memory) RemoveToken(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, normalize(server))
	return nil
}

func (m *Memory) Servers() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.tokens))
	for k := range m.tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// normalize makes "host", "https://host/" and "https://host" the same
// server. Schemeless URLs default to https, as the API client does.
func normalize(server string) string {
	server = strings.TrimSuffix(strings.TrimSpace(server), "/")
	if server != "" && !strings.Contains(server, "://") {
		server = "https://" + server
	}
	return server
}

func sortedKeys(m map[string]serverEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
