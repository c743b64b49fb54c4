package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type Language string

const (
	Polish  Language = "Polish"
	English Language = "English"
)

// Languages lists the choices offered on the settings screen, in order.
var Languages = []Language{Polish, English}

type Settings struct {
	NotificationsEnabled bool     `yaml:"notifications_enabled"`
	Language             Language `yaml:"language"`
}

// Default matches a fresh install.
func Default() Settings {
	return Settings{NotificationsEnabled: true, Language: Polish}
}

// Greeting returns the hello line shown above the settings form.
func (s Settings) Greeting(name string) string {
	if s.Language == English {
		return fmt.Sprintf("Hi %s!", name)
	}
	return fmt.Sprintf("Cześć %s!", name)
}

// NextLanguage cycles through Languages.
func (s Settings) NextLanguage() Language {
	for i, l := range Languages {
		if l == s.Language {
			return Languages[(i+1)%len(Languages)]
		}
	}
	return Languages[0]
}

// Store reads and writes settings.yml, keeping the last value in memory.
type Store struct {
	path   string
	mu     sync.RWMutex
	cached *Settings
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored settings, or Default when the file does not exist.
func (s *Store) Load() (Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		defer s.mu.RUnlock()
		return *s.cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d := Default()
			s.cached = &d
			return d, nil
		}
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	loaded := Default()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if loaded.Language != Polish && loaded.Language != English {
		loaded.Language = Polish
	}

	s.cached = &loaded
	return loaded, nil
}

// Save writes settings to disk and refreshes the cache.
func (s *Store) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	s.cached = &settings
	return nil
}
