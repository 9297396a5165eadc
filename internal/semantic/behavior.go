package semantic

import (
	"fmt"
	"regexp"
	"strings"
)

// matcherKind tags how a declared behavior string is interpreted.
type matcherKind int

const (
	matchSubstring matcherKind = iota
	matchPattern
)

// behaviorMatcher is a behavior string classified exactly once: either a
// literal regex written as /pattern/flags, or a plain case-insensitive
// substring. It is never re-parsed per call.
type behaviorMatcher struct {
	raw    string
	kind   matcherKind
	substr string
	re     *regexp.Regexp
}

// regexLiteral matches the /pattern/flags syntax. Supported flags are the
// Go inline flags i, m and s.
var regexLiteral = regexp.MustCompile(`^/(.+)/([ims]*)$`)

// compileBehavior classifies one behavior string. A /pattern/flags string
// that fails to compile degrades to substring matching on the raw text so a
// bad declaration can never panic an evaluation.
func compileBehavior(raw string) behaviorMatcher {
	if m := regexLiteral.FindStringSubmatch(raw); m != nil {
		pattern := m[1]
		if m[2] != "" {
			pattern = fmt.Sprintf("(?%s)%s", m[2], pattern)
		}
		if re, err := regexp.Compile(pattern); err == nil {
			return behaviorMatcher{raw: raw, kind: matchPattern, re: re}
		}
	}
	return behaviorMatcher{raw: raw, kind: matchSubstring, substr: strings.ToLower(raw)}
}

// matches tests the behavior against a response. lowered must be the
// lowercased form of text.
func (m behaviorMatcher) matches(text, lowered string) bool {
	if m.kind == matchPattern {
		return m.re.MatchString(text)
	}
	return strings.Contains(lowered, m.substr)
}
