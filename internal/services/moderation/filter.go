package moderation

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultBlocklist holds the root words redacted in the public room.
var DefaultBlocklist = []string{"bitch", "dick", "fuck", "nigga", "nigger", "shit", "wtf"}

// wordChar is a Unicode letter, digit or underscore. RE2's \w and \b only
// know ASCII, which would split words like "shitté".
const wordChar = `[\p{L}\p{N}_]`

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Filter redacts blocked words. A word matches when it starts with a root
// right after a non-word character (or the start of the text); the whole
// word becomes len(root) asterisks.
type Filter struct {
	rules []rule
}

func New(roots []string) *Filter {
	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)

	f := &Filter{rules: make([]rule, 0, len(sorted))}
	for _, root := range sorted {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		// group 1 keeps the character in front of the word
		f.rules = append(f.rules, rule{
			re:          regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(root) + wordChar + `*`),
			replacement: "${1}" + strings.Repeat("*", len(root)),
		})
	}
	return f
}

func NewDefault() *Filter { return New(DefaultBlocklist) }

// Apply is safe for concurrent use.
func (f *Filter) Apply(text string) string {
	for _, r := range f.rules {
		text = r.re.ReplaceAllString(text, r.replacement)
	}
	return text
}
