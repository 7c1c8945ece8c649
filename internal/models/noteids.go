package models

import "sort"

// NoteIDSet is a value-membership set of note identifiers. Stored and
// serialized as a sorted slice so equality is structural; membership is
// by value, never position.
type NoteIDSet []string

// NewNoteIDSet builds a set from ids, dropping duplicates and empties.
func NewNoteIDSet(ids ...string) NoteIDSet {
	var out NoteIDSet
	for _, id := range ids {
		out.Add(id)
	}
	return out
}

// Contains reports membership of id.
func (s NoteIDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add inserts id and reports whether the set changed.
func (s *NoteIDSet) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	*s = append(*s, id)
	sort.Strings(*s)
	return true
}

// Remove deletes id and reports whether the set changed.
func (s *NoteIDSet) Remove(id string) bool {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Union returns a new set containing members of both sets.
func (s NoteIDSet) Union(other NoteIDSet) NoteIDSet {
	out := s.Clone()
	for _, id := range other {
		out.Add(id)
	}
	return out
}

// Clone returns an independent copy.
func (s NoteIDSet) Clone() NoteIDSet {
	if s == nil {
		return nil
	}
	return append(NoteIDSet(nil), s...)
}

// Empty reports whether the set has no members.
func (s NoteIDSet) Empty() bool {
	return len(s) == 0
}
