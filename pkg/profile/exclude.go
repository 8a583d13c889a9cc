package profile

import (
	"bufio"
	"os"
	"path"
	"strings"

	"github.com/zielen-io/zielen/pkg/errors"
)

// ExcludeFile holds the profile's exclude patterns. Lines starting with `#`
// are comments. A pattern with a leading slash is anchored at the sync
// root; without one it matches at any depth. Patterns match shell-glob
// style against individual path segments.
type ExcludeFile struct {
	anchored   []string
	unanchored []string
}

// LoadExcludeFile parses the exclude file at p. A missing file means
// nothing is excluded.
func LoadExcludeFile(p string) (*ExcludeFile, error) {
	file, err := fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExcludeFile{}, nil
		}
		return nil, errors.WithContext(err, "open")
	}
	defer file.Close()

	exclude := &ExcludeFile{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		// Leading and trailing whitespace is more likely an accident than
		// load-bearing.
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "/") {
			exclude.anchored = append(exclude.anchored, strings.TrimPrefix(line, "/"))
		} else {
			exclude.unanchored = append(exclude.unanchored, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithContext(err, "read")
	}
	return exclude, nil
}

// Matches reports whether the relative slash path is excluded from syncing,
// either directly or via an excluded ancestor.
func (e *ExcludeFile) Matches(rel string) bool {
	for _, pattern := range e.anchored {
		if matchPrefix(rel, pattern) {
			return true
		}
	}

	for _, pattern := range e.unanchored {
		// Try the pattern at every depth.
		suffix := rel
		for {
			if matchPrefix(suffix, pattern) {
				return true
			}
			idx := strings.IndexByte(suffix, '/')
			if idx < 0 {
				break
			}
			suffix = suffix[idx+1:]
		}
	}
	return false
}

// matchPrefix reports whether the pattern matches rel exactly or matches a
// leading ancestor of it, glob-style per segment.
func matchPrefix(rel, pattern string) bool {
	relParts := strings.Split(rel, "/")
	patternParts := strings.Split(pattern, "/")
	if len(patternParts) > len(relParts) {
		return false
	}

	for i, part := range patternParts {
		ok, err := path.Match(part, relParts[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}
