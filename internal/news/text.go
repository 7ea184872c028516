package news

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Fingerprint is the first 8 hex characters of the MD5 of the title.
func Fingerprint(title string) string {
	sum := md5.Sum([]byte(title))
	return hex.EncodeToString(sum[:])[:8]
}

// titlePrefix returns the first n runes of the lowercased title.
func titlePrefix(title string, n int) string {
	return truncateRunes(strings.ToLower(title), n)
}

// cleanHTML strips markup and collapses whitespace.
func cleanHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			text = doc.Text()
		} else {
			text = tagPattern.ReplaceAllString(s, " ")
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
