package scanner

import (
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
)

// Filter decides which files a scan indexes: an extension allow-list plus
// optional exclusion patterns evaluated relative to the root.
type Filter struct {
	extensions map[string]struct{}
	ignore     *patternmatcher.PatternMatcher
}

// NewFilter builds a filter. Extensions are matched case-insensitively and
// must include the leading dot.
func NewFilter(extensions []string, ignore []string) (*Filter, error) {
	f := ExtensionFilter(extensions)
	if len(ignore) > 0 {
		pm, err := patternmatcher.New(ignore)
		if err != nil {
			return nil, err
		}
		f.ignore = pm
	}
	return f, nil
}

// ExtensionFilter builds a filter with no exclusion patterns.
func ExtensionFilter(extensions []string) *Filter {
	f := &Filter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		f.extensions[strings.ToLower(ext)] = struct{}{}
	}
	return f
}

// Interesting reports whether path carries one of the filter's extensions.
func (f *Filter) Interesting(path string) bool {
	_, ok := f.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Ignored reports whether rel (a path relative to the root) is excluded.
func (f *Filter) Ignored(rel string) bool {
	if f.ignore == nil || rel == "." {
		return false
	}
	matched, err := f.ignore.MatchesOrParentMatches(rel)
	return err == nil && matched
}

// Extensions returns the configured extensions in no particular order.
func (f *Filter) Extensions() []string {
	out := make([]string, 0, len(f.extensions))
	for ext := range f.extensions {
		out = append(out, ext)
	}
	return out
}
