package bridge

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/embywatch/internal/emby"
)

// idNamespace prefixes every display identifier so entity ids from this
// daemon never collide with ids from other sources in the same consumer.
const idNamespace = "emby"

// maxSlugLen caps the human-readable part of an identifier.
const maxSlugLen = 50

// diacritics transliterates common European characters before the
// alphanumeric filter would otherwise drop them.
var diacritics = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
	"à", "a",
	"á", "a",
	"â", "a",
	"è", "e",
	"é", "e",
	"ê", "e",
	"ì", "i",
	"í", "i",
	"î", "i",
	"ò", "o",
	"ó", "o",
	"ô", "o",
	"ù", "u",
	"ú", "u",
	"û", "u",
	"ç", "c",
	"ñ", "n",
)

// slugify converts a free-form name into a lowercase dash-separated slug.
// Example: "Wohnzimmer Apple TV" → "wohnzimmer-apple-tv".
func slugify(name string) string {
	if name == "" {
		return idNamespace
	}

	// Decomposed input ("a" + combining umlaut) must slug like composed
	// input, so normalize before the replacer runs.
	s := norm.NFC.String(name)
	s = strings.ToLower(s)
	s = diacritics.Replace(s)

	var b strings.Builder
	lastWasDash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastWasDash = false
		} else if !lastWasDash {
			b.WriteRune('-')
			lastWasDash = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return idNamespace
	}
	return slug
}

// DisplayID derives the entity identifier for a session:
// "emby-<slug>-<hash6>". The slug comes from device and user name, the
// suffix from a hash of the session id so two devices with the same name
// still get distinct ids. Assigned once at entity creation, never
// regenerated.
//
// Example: DeviceName "Wohnzimmer TV", UserName "anna", session id "s1"
// → "emby-wohnzimmer-tv-anna-640d87".
func DisplayID(s emby.Session) string {
	base := s.DeviceName
	if base == "" {
		base = s.Client
	}
	if base == "" {
		base = idNamespace
	}
	if s.UserName != "" {
		base += " " + s.UserName
	}

	sum := sha1.Sum([]byte(s.Key()))
	suffix := hex.EncodeToString(sum[:])[:6]

	return idNamespace + "-" + slugify(base) + "-" + suffix
}

// DisplayName derives the human-readable entity label, "Device (User)".
func DisplayName(s emby.Session) string {
	device := s.DeviceName
	if device == "" {
		device = s.Client
	}
	if device == "" {
		device = "Emby"
	}
	if s.UserName == "" {
		return device
	}
	return device + " (" + s.UserName + ")"
}
