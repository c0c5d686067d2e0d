package detect

import (
	"regexp"
	"sort"
)

// issuePatterns classifies raw log or source text into issue types. The
// first matching pattern per type wins; one file reports at most one
// issue per type.
var issuePatterns = map[string][]*regexp.Regexp{
	"import_error": compilePatterns(
		`ImportError`,
		`ModuleNotFoundError`,
		`cannot import name`,
		`No module named`,
	),
	"syntax_error": compilePatterns(
		`SyntaxError`,
		`IndentationError`,
		`unexpected EOF`,
		`invalid syntax`,
	),
	"encoding_error": compilePatterns(
		`UnicodeDecodeError`,
		`UnicodeEncodeError`,
		`codec can't decode`,
		`codec can't encode`,
	),
	"type_error": compilePatterns(
		`TypeError`,
		`not callable`,
		`not subscriptable`,
		`missing.*argument`,
	),
	"port_conflict": compilePatterns(
		`Address already in use`,
		`port.*already.*use`,
		`EADDRINUSE`,
	),
	"memory_issue": compilePatterns(
		`MemoryError`,
		`Out of memory`,
		`memory allocation failed`,
	),
	"connection_error": compilePatterns(
		`ConnectionError`,
		`ConnectionRefused`,
		`Connection reset`,
		`ECONNREFUSED`,
	),
	"timeout_error": compilePatterns(
		`TimeoutError`,
		`Operation timed out`,
		`connection timed out`,
	),
}

// patternTypes is the sorted type list, so scans report deterministically.
var patternTypes = func() []string {
	types := make([]string, 0, len(issuePatterns))
	for t := range issuePatterns {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}()

func compilePatterns(exprs ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+expr))
	}
	return compiled
}

// matchIssueType returns the matching pattern expression for a type, or
// false when the content matches none of its patterns.
func matchIssueType(issueType string, content []byte) (string, bool) {
	for _, re := range issuePatterns[issueType] {
		if re.Match(content) {
			return re.String(), true
		}
	}
	return "", false
}
