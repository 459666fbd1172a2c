package links

import (
	"net/url"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagSortQuery |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveDotSegments

// Normalize returns the canonical form of rawURL used as a visited-set key.
// Two URLs that differ only in case of scheme/host, default port, fragment,
// query order or dot segments normalize to the same string.
func Normalize(rawURL string) string {
	n, err := purell.NormalizeURLString(rawURL, normalizeFlags)
	if err != nil {
		return rawURL
	}
	u, err := url.Parse(n)
	if err != nil {
		return n
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
