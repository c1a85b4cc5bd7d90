package profile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Marker recognizes a control line. A line matches when it contains every
// term of Contains (case-insensitive) and, if Pattern is set, matches it.
type Marker struct {
	Name     string   `json:"name,omitempty" mapstructure:"name"`
	Contains []string `json:"contains,omitempty" mapstructure:"contains"`
	Pattern  string   `json:"pattern,omitempty" mapstructure:"pattern"`
}

// Label names the marker in traces and logs.
func (m Marker) Label() string {
	switch {
	case m.Name != "":
		return m.Name
	case len(m.Contains) > 0:
		return strings.Join(m.Contains, " + ")
	default:
		return m.Pattern
	}
}

// MarkerSet matches a line against an ordered list of markers. All terms
// of all markers are searched in a single Aho-Corasick pass.
type MarkerSet struct {
	markers []Marker
	terms   [][]int
	res     []*regexp.Regexp
	matcher *ahocorasick.Matcher
}

// NewMarkerSet compiles markers. The declaration order is kept: when several
// markers match a line, the first declared one is reported.
func NewMarkerSet(markers []Marker) (*MarkerSet, error) {
	s := &MarkerSet{
		markers: markers,
		terms:   make([][]int, len(markers)),
		res:     make([]*regexp.Regexp, len(markers)),
	}
	index := make(map[string]int)
	var dict []string
	for i, m := range markers {
		if len(m.Contains) == 0 && m.Pattern == "" {
			return nil, fmt.Errorf("marker %d (%q) has neither contains nor pattern", i, m.Name)
		}
		for _, term := range m.Contains {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				return nil, fmt.Errorf("marker %q has an empty term", m.Label())
			}
			idx, ok := index[term]
			if !ok {
				idx = len(dict)
				index[term] = idx
				dict = append(dict, term)
			}
			s.terms[i] = append(s.terms[i], idx)
		}
		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("marker %q: %w", m.Label(), err)
			}
			s.res[i] = re
		}
	}
	if len(dict) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(dict)
	}
	return s, nil
}

// Len returns the number of markers.
func (s *MarkerSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.markers)
}

// Match returns the first declared marker matching text.
func (s *MarkerSet) Match(text string) (Marker, bool) {
	if s.Len() == 0 || text == "" {
		return Marker{}, false
	}
	var found map[int]bool
	if s.matcher != nil {
		hits := s.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
		found = make(map[int]bool, len(hits))
		for _, h := range hits {
			found[h] = true
		}
	}
	for i, m := range s.markers {
		if s.matches(i, text, found) {
			return m, true
		}
	}
	return Marker{}, false
}

func (s *MarkerSet) matches(i int, text string, found map[int]bool) bool {
	for _, t := range s.terms[i] {
		if !found[t] {
			return false
		}
	}
	if re := s.res[i]; re != nil && !re.MatchString(text) {
		return false
	}
	return true
}
