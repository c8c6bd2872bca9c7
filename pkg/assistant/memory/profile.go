// Package memory holds everything the assistant remembers across turns:
// the user profile, episodic conversation storage, context assembly and
// knowledge extraction.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Profile is the explicit long-lived knowledge about the user. Interests
// are what the user cares about; preferences are how they want the
// assistant to behave.
type Profile struct {
	Name        string            `json:"name"`
	Facts       map[string]string `json:"facts"`
	Interests   []string          `json:"interests"`
	Preferences []string          `json:"preferences"`
}

func newProfile() Profile {
	return Profile{Facts: map[string]string{}, Interests: []string{}, Preferences: []string{}}
}

// Clone returns a deep copy so callers can hand profiles across goroutines.
func (p Profile) Clone() Profile {
	out := Profile{Name: p.Name, Facts: make(map[string]string, len(p.Facts))}
	for k, v := range p.Facts {
		out.Facts[k] = v
	}
	out.Interests = slices.Clone(p.Interests)
	if out.Interests == nil {
		out.Interests = []string{}
	}
	out.Preferences = slices.Clone(p.Preferences)
	if out.Preferences == nil {
		out.Preferences = []string{}
	}
	return out
}

// String renders the profile for prompt context.
func (p Profile) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ProfileStore persists the profile. Saves are synchronous: once Save
// returns, the data is on disk.
type ProfileStore struct {
	path string

	mu      sync.Mutex
	profile Profile
}

// OpenProfileStore loads the profile at path, starting empty when the file
// does not exist yet. A corrupt file is an error, not silent data loss.
func OpenProfileStore(path string) (*ProfileStore, error) {
	s := &ProfileStore{path: path, profile: newProfile()}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if err := json.Unmarshal(data, &s.profile); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if s.profile.Facts == nil {
		s.profile.Facts = map[string]string{}
	}
	if s.profile.Interests == nil {
		s.profile.Interests = []string{}
	}
	if s.profile.Preferences == nil {
		s.profile.Preferences = []string{}
	}
	return s, nil
}

// Profile returns a copy of the current profile.
func (s *ProfileStore) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// Merge applies an extraction result: facts overwrite per key, interests
// are set-union preserving order, a non-empty name overwrites. The merged
// profile is saved before returning.
func (s *ProfileStore) Merge(e Extraction) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Name != "" {
		s.profile.Name = e.Name
	}
	for k, v := range e.Facts {
		s.profile.Facts[k] = v
	}
	for _, interest := range e.Interests {
		if !slices.Contains(s.profile.Interests, interest) {
			s.profile.Interests = append(s.profile.Interests, interest)
		}
	}
	if err := s.saveLocked(); err != nil {
		return Profile{}, err
	}
	return s.profile.Clone(), nil
}

// Update is the manual edit path: any field present in u replaces the
// stored field wholesale. Distinct from Merge on purpose.
type Update struct {
	Name        *string            `json:"name,omitempty"`
	Facts       *map[string]string `json:"facts,omitempty"`
	Interests   *[]string          `json:"interests,omitempty"`
	Preferences *[]string          `json:"preferences,omitempty"`
}

func (s *ProfileStore) Update(u Update) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Name != nil {
		s.profile.Name = *u.Name
	}
	if u.Facts != nil {
		s.profile.Facts = *u.Facts
		if s.profile.Facts == nil {
			s.profile.Facts = map[string]string{}
		}
	}
	if u.Interests != nil {
		s.profile.Interests = *u.Interests
		if s.profile.Interests == nil {
			s.profile.Interests = []string{}
		}
	}
	if u.Preferences != nil {
		s.profile.Preferences = *u.Preferences
		if s.profile.Preferences == nil {
			s.profile.Preferences = []string{}
		}
	}
	if err := s.saveLocked(); err != nil {
		return Profile{}, err
	}
	return s.profile.Clone(), nil
}

func (s *ProfileStore) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	data, err := json.MarshalIndent(s.profile, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}
