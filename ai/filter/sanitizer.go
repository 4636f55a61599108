// Package filter scrubs personally identifying data from conversation text
// before it reaches inference or storage.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// ErrMalformedInput is reported when the input is not valid UTF-8.
// The text is passed through unmodified.
var ErrMalformedInput = errors.New("sanitizer: malformed input")

// maxPasses bounds the rule passes of one scrub.
const maxPasses = 8

// Report counts the matches replaced in a single scrub.
type Report struct {
	Matches map[FilterType]int
}

// Total returns the number of replaced spans.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Matches {
		n += c
	}
	return n
}

// Stats is a snapshot of cumulative sanitizer activity.
type Stats struct {
	Scrubbed  int64
	Malformed int64
	Matches   map[FilterType]int64
}

// Filter replaces sensitive spans with fixed placeholders.
// A Filter is safe for concurrent use.
type Filter struct {
	rules []rule

	scrubbed  atomic.Int64
	malformed atomic.Int64
	mu        sync.Mutex
	matches   map[FilterType]int64
}

// NewFilter compiles cfg. A placeholder that any rule would match again is
// rejected, since that would make scrubbing non-idempotent.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	if len(cfg.Patterns) == 0 {
		cfg = DefaultConfig()
	}

	f := &Filter{matches: make(map[FilterType]int64)}
	for _, p := range cfg.Patterns {
		if p.Regex == "" || p.Placeholder == "" {
			return nil, fmt.Errorf("pattern %q: regex and placeholder are required", p.Type)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Type, err)
		}
		f.rules = append(f.rules, rule{typ: p.Type, re: re, placeholder: p.Placeholder})
	}
	for _, r := range f.rules {
		for _, other := range f.rules {
			if other.re.MatchString(r.placeholder) {
				return nil, fmt.Errorf("placeholder %q for %q is matched by pattern %q", r.placeholder, r.typ, other.typ)
			}
		}
	}
	return f, nil
}

// DefaultFilter returns a filter with the built-in rules.
func DefaultFilter() *Filter {
	f, err := NewFilter(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return f
}

// Scrub returns text with every sensitive span replaced.
// Malformed input is returned unchanged.
func (f *Filter) Scrub(text string) string {
	out, _, _ := f.ScrubWithReport(text)
	return out
}

// Repair replaces invalid UTF-8 sequences with U+FFFD so the text can be
// scrubbed.
func Repair(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "\uFFFD")
}

// ScrubWithReport is Scrub plus a per-type count of replaced spans.
func (f *Filter) ScrubWithReport(text string) (string, Report, error) {
	report := Report{Matches: map[FilterType]int{}}
	if !utf8.ValidString(text) {
		f.malformed.Add(1)
		return text, report, ErrMalformedInput
	}

	// A replacement can expose a span an earlier rule rejected, e.g. an
	// email glued to a phone number only ends on a word boundary once the
	// digits become a placeholder. Repeat until nothing changes.
	out := text
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, r := range f.rules {
			n := 0
			out = r.re.ReplaceAllStringFunc(out, func(string) string {
				n++
				return r.placeholder
			})
			if n > 0 {
				report.Matches[r.typ] += n
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	f.record(report)
	return out, report, nil
}

// ExtractEmails returns raw email addresses found in text. It is used only for
// identity resolution before the text is scrubbed.
func (f *Filter) ExtractEmails(text string) []string {
	if !utf8.ValidString(text) {
		return nil
	}
	for _, r := range f.rules {
		if r.typ == Email {
			return r.re.FindAllString(text, -1)
		}
	}
	return nil
}

// Stats returns cumulative activity counters.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[FilterType]int64, len(f.matches))
	for k, v := range f.matches {
		m[k] = v
	}
	return Stats{Scrubbed: f.scrubbed.Load(), Malformed: f.malformed.Load(), Matches: m}
}

func (f *Filter) record(r Report) {
	f.scrubbed.Add(1)
	if len(r.Matches) == 0 {
		return
	}
	f.mu.Lock()
	for k, v := range r.Matches {
		f.matches[k] += int64(v)
	}
	f.mu.Unlock()
}
