package trial

import "sort"

// Set is a transient set of natural keys, built fresh for each load run.
type Set map[string]struct{}

// NewSet returns a set holding the given keys.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

func (s Set) Add(key string) { s[key] = struct{}{} }

func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s Set) Len() int { return len(s) }

// Sorted returns the keys in lexical order.
func (s Set) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReferenceSets holds the distinct reference entities implied by a row sequence.
type ReferenceSets struct {
	Projects   Set
	Conditions Set
	Treatments Set

	// Subjects is the number of distinct (project, subject) keys.
	Subjects int
}

// Normalize extracts the distinct projects, conditions and treatments from rows.
// Rows without a treatment contribute nothing to Treatments.
func Normalize(rows []Row) ReferenceSets {
	sets := ReferenceSets{
		Projects:   make(Set),
		Conditions: make(Set),
		Treatments: make(Set),
	}
	subjects := make(map[SubjectKey]struct{})

	for _, row := range rows {
		sets.Projects.Add(row.Project)
		sets.Conditions.Add(row.Condition)
		if t, ok := row.TreatmentID(); ok {
			sets.Treatments.Add(t)
		}
		subjects[row.SubjectKey()] = struct{}{}
	}

	sets.Subjects = len(subjects)
	return sets
}
