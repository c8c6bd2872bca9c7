package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one stored conversation line.
type Entry struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// EntryID builds the canonical "<unix>_<role>" identifier.
func EntryID(ts time.Time, role string) string {
	return fmt.Sprintf("%d_%s", ts.Unix(), role)
}

// Store is episodic memory: append conversation lines, search them by
// relevance to a query.
type Store interface {
	Add(ctx context.Context, e Entry) error
	Search(ctx context.Context, query string, k int) ([]Entry, error)
	Close() error
}

// LocalStore is the default zero-infrastructure backend: an append-only
// JSONL file with bag-of-words cosine ranking. It holds all entries in
// memory, which is comfortably within bounds for a personal assistant's
// conversation history.
type LocalStore struct {
	path string

	mu      sync.RWMutex
	entries []Entry
}

func OpenLocalStore(path string) (*LocalStore, error) {
	s := &LocalStore{path: path}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse memory store line %d: %w", line, err)
		}
		s.entries = append(s.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read memory store: %w", err)
	}
	return s, nil
}

func (s *LocalStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("append memory store: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write memory entry: %w", err)
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *LocalStore) Search(_ context.Context, query string, k int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qv := termVector(query)
	type scored struct {
		e     Entry
		score float64
	}
	var hits []scored
	for _, e := range s.entries {
		score := cosine(qv, termVector(e.Text))
		if score > 0 {
			hits = append(hits, scored{e: e, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].e.Timestamp.After(hits[j].e.Timestamp)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Entry, len(hits))
	for i, h := range hits {
		out[i] = h.e
	}
	return out, nil
}

func (s *LocalStore) Close() error { return nil }

func termVector(text string) map[string]float64 {
	v := map[string]float64{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if len(tok) < 2 {
			continue
		}
		v[tok]++
	}
	return v
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, av := range a {
		na += av * av
		if bv, ok := b[t]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
