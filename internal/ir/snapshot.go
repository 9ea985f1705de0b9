package ir

import "slices"

// Snapshot is an immutable shallow copy of container state taken at a
// specific logical instant.
//
// Snapshots are used only for read consistency and are never written back.
// Values themselves are not deep-copied: a mutable value (map, slice) shared
// with the live state must not be mutated in place by callers.
type Snapshot struct {
	values map[string]any
	hidden map[string]bool
	keys   []string
	seq    int64
}

// NewSnapshot copies values into a new Snapshot. Keys listed in hidden are
// readable through Get but excluded from Keys and Len.
func NewSnapshot(values map[string]any, hidden map[string]bool, seq int64) *Snapshot {
	s := &Snapshot{
		values: make(map[string]any, len(values)),
		seq:    seq,
	}
	for k, v := range values {
		s.values[k] = v
		if hidden[k] {
			if s.hidden == nil {
				s.hidden = make(map[string]bool)
			}
			s.hidden[k] = true
			continue
		}
		s.keys = append(s.keys, k)
	}
	slices.SortFunc(s.keys, CompareKeys)
	return s
}

// Get returns the value captured for key.
func (s *Snapshot) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the enumerable keys in canonical order.
// The returned slice is a copy.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.keys)
}

// Len returns the number of enumerable keys.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Seq returns the logical sequence number the snapshot was taken at.
func (s *Snapshot) Seq() int64 {
	if s == nil {
		return 0
	}
	return s.seq
}

// Map returns a copy of the enumerable values.
func (s *Snapshot) Map() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}
	for _, k := range s.keys {
		out[k] = s.values[k]
	}
	return out
}

// StateMap copies the enumerable contents of any State into a plain map.
func StateMap(st State) map[string]any {
	if snap, ok := st.(*Snapshot); ok {
		return snap.Map()
	}
	keys := st.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := st.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
