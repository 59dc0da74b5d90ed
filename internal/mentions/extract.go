package mentions

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxCaptionRunes = 2000
	maxTags         = 30
)

var (
	hashtagPattern = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionPattern = regexp.MustCompile(`@[\w.]+`)

	captionPolicy = bluemonday.StrictPolicy()
)

// cleanCaption strips markup and caps the caption length
func cleanCaption(s string) string {
	// StrictPolicy escapes the text it keeps
	s = strings.TrimSpace(html.UnescapeString(captionPolicy.Sanitize(s)))
	if utf8.RuneCountInString(s) <= maxCaptionRunes {
		return s
	}
	return string([]rune(s)[:maxCaptionRunes])
}

func ExtractHashtags(text string) []string {
	return uniqueCapped(hashtagPattern.FindAllString(text, -1), maxTags)
}

func ExtractMentions(text string) []string {
	found := mentionPattern.FindAllString(text, -1)
	for i, m := range found {
		found[i] = strings.TrimRight(m, ".")
	}
	return uniqueCapped(found, maxTags)
}

func uniqueCapped(values []string, limit int) []string {
	out := []string{}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// flexInt decodes counters that providers send as numbers, numeric strings
// or null. Negative values (hidden counts) decode as zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	if n < 0 {
		n = 0
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts ids sent either as strings or as numbers
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
