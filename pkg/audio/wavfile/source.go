package wavfile

import (
	"sort"
	"sync"

	"github.com/justyntemme/mastermeter/pkg/audio"
)

// Source serves decoded WAV files, one per track plus an optional master.
// Files are decoded when added and again on Reload.
type Source struct {
	*audio.MemorySource

	mu    sync.Mutex
	paths map[audio.Ref]string
}

// NewSource creates an empty source.
func NewSource() *Source {
	return &Source{
		MemorySource: audio.NewMemorySource(),
		paths:        make(map[audio.Ref]string),
	}
}

// Open builds a source with tracks numbered in order and, when master is
// non-empty, a master bus file.
func Open(tracks []string, master string) (*Source, error) {
	s := NewSource()
	for i, path := range tracks {
		if err := s.Add(audio.TrackRef(i), path); err != nil {
			return nil, err
		}
	}
	if master != "" {
		if err := s.Add(audio.MasterRef(), master); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add decodes path and installs it as ref.
func (s *Source) Add(ref audio.Ref, path string) error {
	format, samples, err := Read(path)
	if err != nil {
		return err
	}
	if err := s.Set(ref, format, samples); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[ref] = path
	return nil
}

// Reload decodes path again and returns the references it backs.
func (s *Source) Reload(path string) ([]audio.Ref, error) {
	var refs []audio.Ref
	for _, ref := range s.Refs() {
		if p, _ := s.Path(ref); p == path {
			refs = append(refs, ref)
		}
	}
	for _, ref := range refs {
		if err := s.Add(ref, path); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// Path returns the file backing ref.
func (s *Source) Path(ref audio.Ref) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.paths[ref]
	return p, ok
}

// Refs lists the installed references, tracks in index order then master.
func (s *Source) Refs() []audio.Ref {
	s.mu.Lock()
	refs := make([]audio.Ref, 0, len(s.paths))
	for ref := range s.paths {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Master != refs[j].Master {
			return !refs[i].Master
		}
		return refs[i].Track < refs[j].Track
	})
	return refs
}

// Paths returns the distinct files in use.
func (s *Source) Paths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range s.Refs() {
		p, _ := s.Path(ref)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
