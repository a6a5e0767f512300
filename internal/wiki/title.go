package wiki

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namespace numbers used by the bot.
const (
	NSMain         = 0
	NSTalk         = 1
	NSUser         = 2
	NSUserTalk     = 3
	NSProject      = 4
	NSProjectTalk  = 5
	NSFile         = 6
	NSFileTalk     = 7
	NSTemplate     = 10
	NSTemplateTalk = 11
	NSHelp         = 12
	NSHelpTalk     = 13
	NSCategory     = 14
	NSCategoryTalk = 15
	NSDraft        = 118
	NSDraftTalk    = 119
	NSModule       = 828
	NSModuleTalk   = 829
)

var namespaceNames = map[int]string{
	NSTalk:         "Talk",
	NSUser:         "User",
	NSUserTalk:     "User talk",
	NSProject:      "Wikipedia",
	NSProjectTalk:  "Wikipedia talk",
	NSFile:         "File",
	NSFileTalk:     "File talk",
	NSTemplate:     "Template",
	NSTemplateTalk: "Template talk",
	NSHelp:         "Help",
	NSHelpTalk:     "Help talk",
	NSCategory:     "Category",
	NSCategoryTalk: "Category talk",
	NSDraft:        "Draft",
	NSDraftTalk:    "Draft talk",
	NSModule:       "Module",
	NSModuleTalk:   "Module talk",
}

// namespaceAliases maps lower-cased prefixes to namespace numbers.
var namespaceAliases = map[string]int{
	"wp":           NSProject,
	"project":      NSProject,
	"wt":           NSProjectTalk,
	"project talk": NSProjectTalk,
	"image":        NSFile,
	"image talk":   NSFileTalk,
}

// subpageNamespaces have subpages enabled, so /doc pages can exist.
var subpageNamespaces = map[int]bool{
	NSTalk: true, NSUser: true, NSUserTalk: true, NSProject: true,
	NSProjectTalk: true, NSFileTalk: true, NSTemplate: true,
	NSTemplateTalk: true, NSHelp: true, NSHelpTalk: true,
	NSCategoryTalk: true, NSDraftTalk: true, NSModule: true, NSModuleTalk: true,
}

func init() {
	for ns, name := range namespaceNames {
		namespaceAliases[strings.ToLower(name)] = ns
	}
}

// ErrInvalidTitle is returned for titles that cannot name a page.
var ErrInvalidTitle = errors.New("invalid title")

// Title identifies a page. It is comparable and usable as a map key.
type Title struct {
	Namespace int
	Name      string
}

// ParseTitle normalizes a title the way MediaWiki does: one leading colon
// is dropped, underscores become spaces, a known namespace prefix is
// split off and the first letter of the name is upper-cased. Anything
// after '#' is returned as the fragment. defaultNS applies when the title
// carries no namespace prefix.
func ParseTitle(raw string, defaultNS int) (Title, string, error) {
	s := strings.ReplaceAll(raw, "_", " ")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ":")
	fragment := ""
	if i := strings.IndexByte(s, '#'); i >= 0 {
		fragment = strings.TrimSpace(s[i+1:])
		s = s[:i]
	}
	s = collapseSpaces(s)
	if s == "" {
		return Title{}, "", fmt.Errorf("%w: %q is empty", ErrInvalidTitle, raw)
	}
	if strings.ContainsAny(s, "[]{}|<>\n") {
		return Title{}, "", fmt.Errorf("%w: %q contains illegal characters", ErrInvalidTitle, raw)
	}

	ns := defaultNS
	if i := strings.IndexByte(s, ':'); i > 0 {
		prefix := strings.ToLower(strings.TrimSpace(s[:i]))
		if n, ok := namespaceAliases[prefix]; ok {
			ns = n
			s = strings.TrimSpace(s[i+1:])
		}
	}
	if s == "" {
		return Title{}, "", fmt.Errorf("%w: %q has no page name", ErrInvalidTitle, raw)
	}
	return Title{Namespace: ns, Name: ucfirst(s)}, fragment, nil
}

// MustParseTitle is ParseTitle for literals; it panics on error.
func MustParseTitle(raw string, defaultNS int) Title {
	t, _, err := ParseTitle(raw, defaultNS)
	if err != nil {
		panic(err)
	}
	return t
}

// Category builds a category title from a name without prefix.
func Category(name string) Title {
	return MustParseTitle(name, NSCategory)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// String returns the full prefixed title.
func (t Title) String() string {
	if t.Namespace == NSMain {
		return t.Name
	}
	return NamespaceName(t.Namespace) + ":" + t.Name
}

// IsZero reports whether t is the zero Title.
func (t Title) IsZero() bool {
	return t == Title{}
}

// Link renders the title as a wikilink. A textlink for a category or file
// gets a leading colon so it links instead of categorizing.
func (t Title) Link(textlink bool) string {
	if textlink && (t.Namespace == NSCategory || t.Namespace == NSFile) {
		return "[[:" + t.String() + "]]"
	}
	return "[[" + t.String() + "]]"
}

// LinkTitle returns the link target text, with a leading colon for textlinks.
func (t Title) LinkTitle(textlink bool) string {
	if textlink {
		return ":" + t.String()
	}
	return t.String()
}

// BaseName returns the last subpage component of the name.
func (t Title) BaseName() string {
	if i := strings.LastIndexByte(t.Name, '/'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// Subpage appends a subpage suffix such as "/doc".
func (t Title) Subpage(suffix string) Title {
	return Title{Namespace: t.Namespace, Name: t.Name + suffix}
}

// IsTalk reports whether t is in a talk namespace.
func (t Title) IsTalk() bool {
	return t.Namespace > 0 && t.Namespace%2 == 1
}

// Talk returns the talk page of a subject page and vice versa.
func (t Title) Talk() Title {
	if t.IsTalk() {
		return Title{Namespace: t.Namespace - 1, Name: t.Name}
	}
	return Title{Namespace: t.Namespace + 1, Name: t.Name}
}

// HasSubpages reports whether the namespace of t allows subpages.
func (t Title) HasSubpages() bool {
	return subpageNamespaces[t.Namespace]
}

// NamespaceName returns the canonical prefix for ns.
func NamespaceName(ns int) string {
	if name, ok := namespaceNames[ns]; ok {
		return name
	}
	return fmt.Sprintf("Namespace %d", ns)
}

// ParseTitles parses several full titles, stopping at the first error.
func ParseTitles(raws []string, defaultNS int) ([]Title, error) {
	out := make([]Title, 0, len(raws))
	for _, raw := range raws {
		t, _, err := ParseTitle(raw, defaultNS)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
