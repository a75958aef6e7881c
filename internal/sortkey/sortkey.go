package sortkey

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultArticles are always stripped from the front of artist names and titles
var DefaultArticles = []string{"the", "a", "an"}

// Options tunes sort key construction
type Options struct {
	ExtraArticles  []string            // e.g. "le", "la", "l'"
	LastNameFirst  bool                // "Miles Davis" -> "davis, miles"
	AllowThreeWord bool                // also flip "Ludwig van Beethoven"
	Exclude        map[string]struct{} // names never flipped (see NormalizeName)
	SafeBands      bool                // skip flips for names that look like bands
}

var (
	numericSuffixRe = regexp.MustCompile(`\s*\((\d+)\)$`)
	whitespaceRe    = regexp.MustCompile(`\s+`)

	apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'", "´", "'")
)

// StripNumericSuffix removes the " (2)" disambiguation suffix Discogs appends to artist names
func StripNumericSuffix(name string) string {
	return strings.TrimSpace(numericSuffixRe.ReplaceAllString(name, ""))
}

// NormalizeApostrophes maps typographic apostrophes to a straight one
func NormalizeApostrophes(s string) string {
	return apostrophes.Replace(s)
}

// NormalizeName collapses whitespace and lowercases, the form used for exclude lists
func NormalizeName(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// ParseExclude reads a semicolon separated list of names into an exclude set
func ParseExclude(list string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range strings.Split(list, ";") {
		if n := NormalizeName(name); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// ParseArticles reads a comma separated list of extra articles
func ParseArticles(list string) []string {
	var out []string
	for _, a := range strings.Split(list, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Lower lowercases NFC-normalized text with Unicode case rules
func Lower(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// StripArticles removes one leading article followed by a space or apostrophe.
// Matching is case-insensitive; the remainder keeps its original case.
func StripArticles(text string, extra []string) string {
	t := strings.TrimSpace(NormalizeApostrophes(text))
	if t == "" {
		return ""
	}

	articles := make([]string, 0, len(DefaultArticles)+len(extra))
	articles = append(articles, DefaultArticles...)
	for _, a := range extra {
		if a = strings.ToLower(strings.TrimSpace(NormalizeApostrophes(a))); a != "" {
			articles = append(articles, a)
		}
	}

	for _, art := range articles {
		art = strings.TrimRight(art, "'")
		if art == "" {
			continue
		}
		if rest, ok := cutArticle(t, art); ok {
			return strings.TrimSpace(rest)
		}
	}
	return t
}

// cutArticle matches art at the start of t, case-insensitively, followed by ' ' or '\''
func cutArticle(t, art string) (string, bool) {
	n := utf8.RuneCountInString(art)
	i := 0
	for count := 0; count < n; count++ {
		if i >= len(t) {
			return "", false
		}
		_, size := utf8.DecodeRuneInString(t[i:])
		i += size
	}
	if !strings.EqualFold(t[:i], art) || i >= len(t) {
		return "", false
	}
	if next := t[i]; next == ' ' || next == '\'' {
		return t[i+1:], true
	}
	return "", false
}

// firstArtist keeps the part before the first '/' or ','
func firstArtist(display string) string {
	if i := strings.IndexAny(display, "/,"); i >= 0 {
		display = display[:i]
	}
	return strings.TrimSpace(display)
}

// Build returns the (artist, title) sort keys for a row.
// The output depends only on the inputs.
func Build(artistDisplay, title string, opts Options) (string, string) {
	artist := StripNumericSuffix(firstArtist(artistDisplay))
	sortArtist := Lower(StripArticles(artist, opts.ExtraArticles))

	if opts.LastNameFirst {
		if flipped, ok := lastNameFirst(artist, opts); ok {
			sortArtist = flipped
		}
	}

	return sortArtist, Lower(StripArticles(title, opts.ExtraArticles))
}

// lastNameFirst flips personal names. Names with an unflippable token count come back
// lowercased with any article kept; ok is false when the name must keep its baseline key.
func lastNameFirst(artist string, opts Options) (string, bool) {
	if _, excluded := opts.Exclude[NormalizeName(artist)]; excluded {
		return "", false
	}

	tokens := strings.Fields(artist)
	switch {
	case len(tokens) == 2:
		if opts.SafeBands && IsBandLike(tokens[0], tokens[1]) {
			return "", false
		}
		if !validTwoWord(tokens) {
			return "", false
		}
		return Lower(tokens[1] + ", " + tokens[0]), true
	case len(tokens) == 3 && opts.AllowThreeWord:
		return flipThreeWord(tokens)
	}
	return Lower(artist), true
}

func isConnective(token string) bool {
	switch strings.ToLower(token) {
	case "the", "and", "&":
		return true
	}
	return false
}

// validTwoWord accepts tokens made of letters, apostrophes and hyphens only
func validTwoWord(tokens []string) bool {
	for _, t := range tokens {
		if isConnective(t) {
			return false
		}
		for _, r := range t {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}

var particles = map[string]bool{
	"de": true, "del": true, "van": true, "von": true, "da": true, "di": true, "la": true,
	"le": true, "du": true, "do": true, "dos": true, "das": true, "st": true,
}

// flipThreeWord handles "First M. Last" and "First van Last"
func flipThreeWord(tokens []string) (string, bool) {
	first, middle, last := tokens[0], tokens[1], tokens[2]
	if isConnective(first) {
		return "", false
	}
	middleNorm := strings.Trim(strings.ToLower(middle), ".")
	if utf8.RuneCountInString(middleNorm) == 1 || strings.HasSuffix(middle, ".") || particles[middleNorm] {
		return Lower(last + ", " + first + " " + middle), true
	}
	return "", false
}
