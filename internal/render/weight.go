package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Weighting follows the twitter-text v3 configuration. Lengths are tracked
// in scaled units and divided by weightScale at the end.
const (
	MaxWeightedLength    = 280
	weightScale          = 100
	defaultWeight        = 200
	lightWeight          = 100
	transformedURLLength = 23
	emojiWeight          = defaultWeight
	EllipsisReserve      = 4
	Ellipsis             = "…"
	maxHandleLength      = 15
)

// Code point ranges that weigh lightWeight. Everything else weighs defaultWeight.
var lightRanges = [][2]rune{
	{0, 4351},
	{8192, 8205},
	{8208, 8223},
	{8242, 8247},
}

// linkedTLDs are top-level domains the platform autolinks. A URL on any
// other TLD, or a bare domain, is counted as max(natural weight, URL weight)
// since it may stay plain text.
var linkedTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "io": true, "xyz": true,
	"money": true, "app": true, "dev": true, "co": true, "ai": true,
	"gg": true, "finance": true, "fi": true, "me": true, "so": true,
	"link": true, "info": true,
}

const (
	// ASCII subset of the characters twitter-text accepts in URL paths and
	// queries. Anything outside it ends the URL.
	urlPathChars = `[A-Za-z0-9!*';:=+,.$/%#\[\]\-_~&|@?]`
	urlHost      = `(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}`
)

var (
	schemeURL = regexp.MustCompile(`(?i)\bhttps?://` + urlHost + `(?::[0-9]{1,5})?(?:[/?]` + urlPathChars + `*)?`)

	bareDomain      = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+(?:com|org|net|io|xyz|money|eth|app|dev|co|ai|gg|finance|fi|me|so|link|info)\b(?:/` + urlPathChars + `*)?`)
	urlTrailingPunc = regexp.MustCompile(`[.,;:!?'")\]]+$`)
)

// hostTLD returns the lowercased last label of the host in a scheme URL.
func hostTLD(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, ":/?"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(u[strings.LastIndex(u, ".")+1:])
}

type segment struct {
	text  string
	units int
}

// WeightedLength returns the platform length of s after NFC normalization.
func WeightedLength(s string) int {
	return unitsOf(segments(norm.NFC.String(s))) / weightScale
}

// Fits reports whether s is within MaxWeightedLength.
func Fits(s string) bool { return WeightedLength(s) <= MaxWeightedLength }

func unitsOf(segs []segment) int {
	n := 0
	for _, sg := range segs {
		n += sg.units
	}
	return n
}

func runeWeight(r rune) int {
	for _, rg := range lightRanges {
		if r >= rg[0] && r <= rg[1] {
			return lightWeight
		}
	}
	return defaultWeight
}

// segments splits s into units that must not be broken when truncating:
// whole URLs, emoji sequences and single code points.
func segments(s string) []segment {
	var out []segment
	last := 0
	for _, span := range urlSpans(s) {
		out = appendRunes(out, s[last:span.start])
		u := s[span.start:span.end]
		units := transformedURLLength * weightScale
		if !span.scheme || !linkedTLDs[hostTLD(u)] {
			if natural := unitsOf(appendRunes(nil, u)); natural > units {
				units = natural
			}
		}
		out = append(out, segment{text: u, units: units})
		last = span.end
	}
	return appendRunes(out, s[last:])
}

type urlSpan struct {
	start, end int
	scheme     bool
}

func urlSpans(s string) []urlSpan {
	var spans []urlSpan
	taken := func(a, b int) bool {
		for _, sp := range spans {
			if a < sp.end && b > sp.start {
				return true
			}
		}
		return false
	}
	add := func(re *regexp.Regexp, scheme bool) {
		for _, m := range re.FindAllStringIndex(s, -1) {
			end := m[1]
			if loc := urlTrailingPunc.FindStringIndex(s[m[0]:end]); loc != nil {
				end = m[0] + loc[0]
			}
			if end <= m[0] || taken(m[0], end) {
				continue
			}
			spans = append(spans, urlSpan{start: m[0], end: end, scheme: scheme})
		}
	}
	add(schemeURL, true)
	add(bareDomain, false)
	// order by start
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	return spans
}

func appendRunes(out []segment, s string) []segment {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isEmojiStart(r) {
			end := emojiSequenceEnd(s, i)
			out = append(out, segment{text: s[i:end], units: emojiWeight})
			i = end
			continue
		}
		out = append(out, segment{text: s[i : i+size], units: runeWeight(r)})
		i += size
	}
	return out
}

func isEmojiStart(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	}
	return false
}

func isRegionalIndicator(r rune) bool { return r >= 0x1F1E6 && r <= 0x1F1FF }

func isEmojiModifier(r rune) bool {
	return r == 0xFE0F || r == 0xFE0E || r == 0x20E3 || (r >= 0x1F3FB && r <= 0x1F3FF) ||
		(r >= 0xE0020 && r <= 0xE007F)
}

// emojiSequenceEnd returns the byte offset just past the emoji sequence
// starting at i: modifiers, ZWJ-joined emoji and flag pairs.
func emojiSequenceEnd(s string, i int) int {
	first, size := utf8.DecodeRuneInString(s[i:])
	j := i + size
	if isRegionalIndicator(first) {
		if r, sz := utf8.DecodeRuneInString(s[j:]); isRegionalIndicator(r) {
			return j + sz
		}
		return j
	}
	for j < len(s) {
		r, sz := utf8.DecodeRuneInString(s[j:])
		switch {
		case isEmojiModifier(r):
			j += sz
		case r == 0x200D:
			next, nsz := utf8.DecodeRuneInString(s[j+sz:])
			if !isEmojiStart(next) {
				return j
			}
			j += sz + nsz
		default:
			return j
		}
	}
	return j
}

// truncate returns the longest prefix of s, cut on segment boundaries and
// trailing space trimmed, whose weighted length is at most limit.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	max := limit * weightScale
	var b strings.Builder
	used := 0
	for _, sg := range segments(norm.NFC.String(s)) {
		if used+sg.units > max {
			break
		}
		used += sg.units
		b.WriteString(sg.text)
	}
	return strings.TrimRight(b.String(), " \t\n")
}
