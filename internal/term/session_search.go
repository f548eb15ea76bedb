package term

import (
	"regexp"
	"strings"
)

// SearchMatch is one match location in the combined scrollback+screen text,
// ordered by (line, start_col).
type SearchMatch struct {
	Line, StartCol, EndCol int
}

type searchState struct {
	pattern       string
	caseSensitive bool
	regex         bool
	matches       []SearchMatch
	current       int // index into matches, -1 if none
}

// SearchSet installs a new search pattern and returns the number of matches
// found across scrollback + the visible grid. An invalid regex yields zero
// matches rather than an error, matching the "never panics on malformed
// input" failure model used for escape sequences.
func (s *Session) SearchSet(pattern string, caseSensitive, useRegex bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.search = searchState{
		pattern:       pattern,
		caseSensitive: caseSensitive,
		regex:         useRegex,
		current:       -1,
	}
	if pattern == "" {
		return 0
	}

	lines := s.vt.GetAllLines()
	s.search.matches = findMatches(lines, pattern, caseSensitive, useRegex)
	if len(s.search.matches) > 0 {
		s.search.current = 0
	}
	return len(s.search.matches)
}

func findMatches(lines []string, pattern string, caseSensitive, useRegex bool) []SearchMatch {
	var matches []SearchMatch

	if useRegex {
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		re, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil
		}
		for lineIdx, line := range lines {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				matches = append(matches, SearchMatch{Line: lineIdx, StartCol: loc[0], EndCol: loc[1]})
			}
		}
		return matches
	}

	needle := pattern
	if !caseSensitive {
		needle = strings.ToLower(needle)
	}
	for lineIdx, line := range lines {
		haystack := line
		if !caseSensitive {
			haystack = strings.ToLower(haystack)
		}
		start := 0
		for {
			idx := strings.Index(haystack[start:], needle)
			if idx < 0 {
				break
			}
			col := start + idx
			matches = append(matches, SearchMatch{Line: lineIdx, StartCol: col, EndCol: col + len(needle)})
			start = col + len(needle)
			if len(needle) == 0 {
				break
			}
		}
	}
	return matches
}

// SearchNext advances to the next match, wrapping at the end.
func (s *Session) SearchNext() (SearchMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.search.matches) == 0 {
		return SearchMatch{}, false
	}
	s.search.current = (s.search.current + 1) % len(s.search.matches)
	return s.search.matches[s.search.current], true
}

// SearchPrev moves to the previous match, wrapping at the start.
func (s *Session) SearchPrev() (SearchMatch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.search.matches) == 0 {
		return SearchMatch{}, false
	}
	s.search.current--
	if s.search.current < 0 {
		s.search.current = len(s.search.matches) - 1
	}
	return s.search.matches[s.search.current], true
}

// SearchMatches returns the full ordered match list for the active search.
func (s *Session) SearchMatches() []SearchMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchMatch, len(s.search.matches))
	copy(out, s.search.matches)
	return out
}
