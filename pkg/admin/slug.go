package admin

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugDash  = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases s, drops accents and anything that is not a word
// character, space or hyphen, and joins the words with hyphens.
//
//	Slugify("Pro Plan (Monthly)") == "pro-plan-monthly"
//	Slugify("Crème brûlée") == "creme-brulee"
func Slugify(s string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r < 0x80 {
			ascii.WriteRune(r)
		}
	}
	value := slugStrip.ReplaceAllString(strings.ToLower(ascii.String()), "")
	value = slugDash.ReplaceAllString(value, "-")
	return strings.Trim(value, "-_")
}

// prepopulate fills an empty slug from source, leaving it nil when nothing
// usable remains
func prepopulate(slug *string, source string) *string {
	if slug != nil && strings.TrimSpace(*slug) != "" {
		return slug
	}
	if s := Slugify(source); s != "" {
		return &s
	}
	return nil
}
