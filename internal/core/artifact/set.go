package artifact

import "strings"

// =============================================================================
// Set
// =============================================================================

// Set is an immutable-after-load collection of artifacts keyed by name.
// Iteration order is the load order.
type Set struct {
	byName map[string]*Artifact
	order  []*Artifact
}

// NewSet builds a set, rejecting duplicate names.
func NewSet(artifacts []*Artifact) (*Set, error) {
	s := &Set{
		byName: make(map[string]*Artifact, len(artifacts)),
		order:  make([]*Artifact, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		if _, exists := s.byName[a.Name]; exists {
			return nil, NewArtifactError("load", a.Name, ErrDuplicateArtifact)
		}
		s.byName[a.Name] = a
		s.order = append(s.order, a)
	}
	return s, nil
}

// Get returns the named artifact or ErrNotFound.
func (s *Set) Get(name string) (*Artifact, error) {
	a, ok := s.byName[name]
	if !ok {
		return nil, NewArtifactError("get", name, ErrNotFound)
	}
	return a, nil
}

// Has reports whether the named artifact is in the set.
func (s *Set) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// All returns every artifact in load order.
func (s *Set) All() []*Artifact {
	out := make([]*Artifact, len(s.order))
	copy(out, s.order)
	return out
}

// Names returns every artifact name in load order.
func (s *Set) Names() []string {
	names := make([]string, len(s.order))
	for i, a := range s.order {
		names[i] = a.Name
	}
	return names
}

// Len returns the number of artifacts.
func (s *Set) Len() int {
	return len(s.order)
}

// ByPathPrefix returns the artifacts whose source path starts with prefix,
// in load order.
func (s *Set) ByPathPrefix(prefix string) []*Artifact {
	var out []*Artifact
	for _, a := range s.order {
		if strings.HasPrefix(a.SourcePath, prefix) {
			out = append(out, a)
		}
	}
	return out
}
