package models

import "strings"

// ScopeAll selects every class in the student's enrollment history.
const ScopeAll ClassScope = "all"

// ClassScope is either a concrete class identifier or ScopeAll.
type ClassScope string

// IsAll reports whether the scope spans the whole enrollment history. An
// empty scope is treated the same as ScopeAll.
func (s ClassScope) IsAll() bool {
	trimmed := strings.TrimSpace(string(s))
	return trimmed == "" || strings.EqualFold(trimmed, string(ScopeAll))
}

// ClassIDs resolves the scope to the class ids that get a body section.
func (s ClassScope) ClassIDs(profile StudentProfile) []string {
	if s.IsAll() {
		return profile.PrevClasses.ClassIDs()
	}
	return []string{strings.TrimSpace(string(s))}
}

// StudentAggregate bundles one student's profile with every record the
// export needs, each list ordered oldest-created first.
type StudentAggregate struct {
	Profile  StudentProfile `json:"profile"`
	Plans    []Plan         `json:"plans"`
	Meetings []Meeting      `json:"meetings"`
	Finals   []Final        `json:"finals"`
}
