package article

import (
	"strings"

	"mvdan.cc/xurls/v2"
)

// FindURLs returns the distinct http(s) URLs in text in order of appearance.
func FindURLs(text string) ([]string, error) {
	re, err := xurls.StrictMatchingScheme("https?://")
	if err != nil {
		return nil, err
	}

	matches := re.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))

	for _, m := range matches {
		m = strings.TrimSpace(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}

	return urls, nil
}

// SingleURL reports whether text consists of exactly one URL and
// nothing else, and returns it.
func SingleURL(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return "", false
	}

	urls, err := FindURLs(text)
	if err != nil || len(urls) != 1 || urls[0] != text {
		return "", false
	}

	return urls[0], true
}
