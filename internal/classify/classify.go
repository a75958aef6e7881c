// Package classify decides which physical media a catalog release represents.
// Every predicate here is pure and works on the format descriptors alone.
package classify

import (
	"fmt"
	"strings"

	"github.com/franz/vinyl-shelf/internal/discogs"
)

// Policy selects how much evidence an LP needs before it counts as 33 RPM
type Policy int

const (
	// PolicyDefault accepts LP/Album vinyl, or 12" vinyl with 33 RPM evidence
	PolicyDefault Policy = iota
	// PolicyStrict requires LP/Album vinyl with explicit 33 RPM evidence
	PolicyStrict
	// PolicyProbable accepts LP/Album vinyl unless it names 45 or 78
	PolicyProbable
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyProbable:
		return "probable"
	default:
		return "default"
	}
}

// PolicyFromFlags maps the CLI flags to a policy. Strict wins when both are set.
func PolicyFromFlags(strict, probable bool) Policy {
	switch {
	case strict:
		return PolicyStrict
	case probable:
		return PolicyProbable
	default:
		return PolicyDefault
	}
}

// Media is the kind of item a build collects
type Media string

const (
	MediaLP Media = "lp"
	Media45 Media = "45"
	MediaCD Media = "cd"
)

// ParseMedia validates a media name
func ParseMedia(s string) (Media, error) {
	switch Media(strings.ToLower(strings.TrimSpace(s))) {
	case MediaLP, "":
		return MediaLP, nil
	case Media45:
		return Media45, nil
	case MediaCD:
		return MediaCD, nil
	}
	return "", fmt.Errorf("unknown media %q (want lp, 45 or cd)", s)
}

var (
	sizeTokens12 = []string{`12"`, "12in", "12-inch"}
	sizeTokens7  = []string{`7"`, "7in", "7-inch"}
)

// descSet is a lowercased, trimmed set of format description tokens
type descSet map[string]struct{}

func newDescSet(descriptions []string) descSet {
	set := make(descSet, len(descriptions))
	for _, d := range descriptions {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

func (s descSet) has(token string) bool {
	_, ok := s[token]
	return ok
}

func (s descSet) hasAny(tokens ...string) bool {
	for _, t := range tokens {
		if s.has(t) {
			return true
		}
	}
	return false
}

func (s descSet) isLPOrAlbum() bool {
	return s.hasAny("lp", "album")
}

func (s descSet) tokens() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	return out
}

var squasher = strings.NewReplacer(".", "", " ", "")

// squash drops dots and spaces so "33 ⅓ R.P.M." and "33⅓rpm" compare alike
func squash(token string) string {
	return squasher.Replace(token)
}

func isVinyl(f discogs.Format) bool {
	return strings.EqualFold(strings.TrimSpace(f.Name), "vinyl")
}

func vinylSets(formats []discogs.Format) []descSet {
	var sets []descSet
	for _, f := range formats {
		if isVinyl(f) {
			sets = append(sets, newDescSet(f.Descriptions))
		}
	}
	return sets
}

// Has33RPM reports whether description tokens denote 33 RPM.
// A token naming both 33 and rpm is enough. Otherwise a token containing 33
// must come with a separate rpm token or an LP/Album token.
func Has33RPM(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	var has33, hasRPM, hasLPHint bool
	for _, t := range tokens {
		t = squash(strings.ToLower(strings.TrimSpace(t)))
		if strings.Contains(t, "33") {
			if strings.Contains(t, "rpm") {
				return true
			}
			has33 = true
		}
		if strings.HasSuffix(t, "rpm") {
			hasRPM = true
		}
		if t == "lp" || t == "album" {
			hasLPHint = true
		}
	}
	return has33 && (hasRPM || hasLPHint)
}

// HasExplicit45or78 reports whether a token names a 45 or 78 speed
func HasExplicit45or78(tokens []string) bool {
	for _, t := range tokens {
		t = squash(strings.ToLower(strings.TrimSpace(t)))
		if strings.Contains(t, "45") || strings.Contains(t, "78") {
			return true
		}
	}
	return false
}

// IsLP33 reports whether the formats describe a 33 RPM LP under the given policy.
// Only formats named "Vinyl" are considered.
func IsLP33(formats []discogs.Format, policy Policy) bool {
	for _, set := range vinylSets(formats) {
		if lp33(set, policy) {
			return true
		}
	}
	return false
}

func lp33(set descSet, policy Policy) bool {
	switch policy {
	case PolicyStrict:
		return set.isLPOrAlbum() && Has33RPM(set.tokens())
	case PolicyProbable:
		return set.isLPOrAlbum() && !HasExplicit45or78(set.tokens())
	default:
		return set.isLPOrAlbum() || (Has33RPM(set.tokens()) && set.hasAny(sizeTokens12...))
	}
}

// IsVinyl45 reports whether the formats describe a 7" 45 RPM single.
// The 7" size token keeps 12" 45 RPM maxis out.
func IsVinyl45(formats []discogs.Format) bool {
	for _, set := range vinylSets(formats) {
		if !set.hasAny(sizeTokens7...) {
			continue
		}
		for t := range set {
			if strings.Contains(t, "45") && strings.Contains(t, "rpm") {
				return true
			}
		}
	}
	return false
}

// IsCD reports whether any format is a CD or CDr
func IsCD(formats []discogs.Format) bool {
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f.Name)) {
		case "cd", "cdr":
			return true
		}
	}
	return false
}

// Accepts dispatches to the predicate for the requested media
func Accepts(media Media, formats []discogs.Format, policy Policy) bool {
	switch media {
	case Media45:
		return IsVinyl45(formats)
	case MediaCD:
		return IsCD(formats)
	default:
		return IsLP33(formats, policy)
	}
}

// Explain returns a short reason why the formats were rejected for media,
// or "" when they are accepted.
func Explain(formats []discogs.Format, media Media, policy Policy) string {
	if Accepts(media, formats, policy) {
		return ""
	}
	if len(formats) == 0 {
		return "no format information"
	}

	switch media {
	case MediaCD:
		return "not a CD or CDr"
	case Media45:
		if len(vinylSets(formats)) == 0 {
			return "not vinyl"
		}
		return `not a 7" 45 RPM single`
	}

	sets := vinylSets(formats)
	if len(sets) == 0 {
		return "not vinyl"
	}
	anyLP := false
	for _, set := range sets {
		if set.isLPOrAlbum() {
			anyLP = true
			if policy == PolicyProbable && HasExplicit45or78(set.tokens()) {
				return "LP marked 45 or 78 RPM"
			}
		}
	}
	if anyLP && policy == PolicyStrict {
		return "LP without 33 RPM marking"
	}
	return "vinyl without LP or Album descriptor"
}

// Counts accumulates the vinyl breakdown reported by debug stats
type Counts struct {
	Vinyl     bool
	VinylLP   bool
	VinylLP33 bool
}

// Breakdown reports the vinyl / LP / LP with "33 ... rpm" flags for one release.
// The 33 flag requires both markers inside a single description.
func Breakdown(formats []discogs.Format) Counts {
	var c Counts
	for _, f := range formats {
		if !isVinyl(f) {
			continue
		}
		c.Vinyl = true
		for _, d := range f.Descriptions {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "lp" || d == "album" {
				c.VinylLP = true
			}
		}
	}
	if !c.VinylLP {
		return c
	}
	for _, f := range formats {
		if !isVinyl(f) {
			continue
		}
		for _, d := range f.Descriptions {
			d = strings.ToLower(strings.TrimSpace(d))
			if strings.Contains(d, "33") && strings.Contains(d, "rpm") {
				c.VinylLP33 = true
			}
		}
	}
	return c
}
