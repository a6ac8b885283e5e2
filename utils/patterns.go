package utils

import (
	"path"
	"regexp"
	"strings"
)

// PatternMatcher filters the files found under directory inputs. Each
// pattern is tried as a glob against the base name and the slash separated
// path, and as a regular expression against the path.
type PatternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	return &PatternMatcher{
		includeGlobs: cleanPatterns(includePatterns),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: cleanPatterns(excludePatterns),
		excludeRegex: compileRegex(excludePatterns),
	}
}

// ShouldInclude reports whether rel, a slash separated path relative to the
// input directory, passes the filters.
func (m *PatternMatcher) ShouldInclude(rel string) bool {
	if m == nil {
		return true
	}
	if (len(m.includeGlobs) > 0 || len(m.includeRegex) > 0) && !m.matches(rel, m.includeGlobs, m.includeRegex) {
		return false
	}
	if (len(m.excludeGlobs) > 0 || len(m.excludeRegex) > 0) && m.matches(rel, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

func (m *PatternMatcher) matches(rel string, globs []string, regexes []*regexp.Regexp) bool {
	base := path.Base(rel)
	for _, pattern := range globs {
		if matched, _ := path.Match(pattern, base); matched {
			return true
		}
		if matched, _ := path.Match(pattern, rel); matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(rel) {
			return true
		}
	}
	return false
}

func cleanPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			out = append(out, pattern)
		}
	}
	return out
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range cleanPatterns(patterns) {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}
