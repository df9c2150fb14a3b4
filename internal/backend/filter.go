package backend

import (
	"fmt"
	"regexp"
	"sort"
)

// Filter decides which metric names are forwarded.
// A name is admitted when it matches at least one whitelist pattern and no
// blacklist pattern. An empty whitelist admits nothing.
type Filter struct {
	whitelist []*regexp.Regexp
	blacklist []*regexp.Regexp
}

// NewFilter compiles the whitelist and blacklist patterns.
func NewFilter(whitelist, blacklist []string) (*Filter, error) {
	wl, err := compilePatterns(whitelist)
	if err != nil {
		return nil, fmt.Errorf("compiling whitelist: %w", err)
	}

	bl, err := compilePatterns(blacklist)
	if err != nil {
		return nil, fmt.Errorf("compiling blacklist: %w", err)
	}

	return &Filter{whitelist: wl, blacklist: bl}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}

		out = append(out, re)
	}

	return out, nil
}

// Admit reports whether name passes the filter.
func (f *Filter) Admit(name string) bool {
	return someMatch(f.whitelist, name) && !someMatch(f.blacklist, name)
}

func someMatch(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}

// admittedNames returns the names of m that pass the filter, sorted.
func admittedNames[V any](f *Filter, m map[string]V) []string {
	names := make([]string, 0, len(m))

	for name := range m {
		if f.Admit(name) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names
}
