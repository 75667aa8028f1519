package validator

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/isdmx/execbox/config"
)

// Pattern is a named, compiled entry of a PatternSet.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// PatternSet is an ordered list of denied patterns matched against raw source.
type PatternSet struct {
	patterns []Pattern
}

// NewPatternSet compiles the given pattern definitions in order.
func NewPatternSet(defs ...[]config.PatternConfig) (*PatternSet, error) {
	set := &PatternSet{}
	for _, list := range defs {
		for _, def := range list {
			re, err := compilePattern(def.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid denied pattern %q: %w", def.Name, err)
			}
			name := def.Name
			if name == "" {
				name = def.Pattern
			}
			set.patterns = append(set.patterns, Pattern{Name: name, Re: re})
		}
	}
	return set, nil
}

// ecmaSpace is the set of characters JavaScript's \s matches. RE2's \s is
// ASCII only.
const ecmaSpace = `\t\n\v\f\r \x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}`

// compilePattern compiles a JavaScript-flavoured denied pattern, widening
// \s and \S to JavaScript's whitespace set.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(translateSpaces(pattern))
}

func translateSpaces(pattern string) string {
	var b strings.Builder
	inClass := false

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			next := pattern[i+1]
			i++
			switch {
			case next == 's' && inClass:
				b.WriteString(ecmaSpace)
			case next == 's':
				b.WriteString("[" + ecmaSpace + "]")
			case next == 'S' && !inClass:
				b.WriteString("[^" + ecmaSpace + "]")
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
		case c == '[' && !inClass:
			inClass = true
			b.WriteByte(c)
			// a leading ] or ^] is a literal
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				b.WriteByte(']')
				i++
			}
		case c == ']' && inClass:
			inClass = false
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Match returns the name of the first pattern that matches code.
func (s *PatternSet) Match(code string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, p := range s.patterns {
		if p.Re.MatchString(code) {
			return p.Name, true
		}
	}
	return "", false
}

// Len returns the number of patterns in the set.
func (s *PatternSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Names returns the pattern names in match order.
func (s *PatternSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.patterns))
	for _, p := range s.patterns {
		names = append(names, p.Name)
	}
	return names
}

type patternFile struct {
	Patterns []config.PatternConfig `yaml:"patterns"`
}

// LoadPatternFile reads additional denied patterns from a YAML document of
// the form:
//
//	patterns:
//	  - name: worker_threads
//	    pattern: 'worker_threads'
func LoadPatternFile(path string) ([]config.PatternConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read patterns file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse patterns file %s: %w", path, err)
	}

	for i, p := range file.Patterns {
		if p.Pattern == "" {
			return nil, fmt.Errorf("patterns file %s: entry %d has an empty pattern", path, i)
		}
	}

	return file.Patterns, nil
}
