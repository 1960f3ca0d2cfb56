package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Cascade is an ordered list of CSS selectors. The first selector that
// yields a non-empty result wins.
type Cascade []string

type finder interface {
	Find(selector string) *goquery.Selection
}

// MergeCascades concatenates selector lists, dropping blanks and repeats
func MergeCascades(lists ...[]string) Cascade {
	seen := make(map[string]bool)
	var merged Cascade
	for _, list := range lists {
		for _, sel := range list {
			sel = strings.TrimSpace(sel)
			if sel == "" || seen[sel] {
				continue
			}
			seen[sel] = true
			merged = append(merged, sel)
		}
	}
	return merged
}

// Find returns the matches of the first selector that matches anything,
// along with that selector. An empty selection is returned when none do.
func (c Cascade) Find(root finder) (*goquery.Selection, string) {
	var last *goquery.Selection
	for _, sel := range c {
		found := root.Find(sel)
		if found.Length() > 0 {
			return found, sel
		}
		last = found
	}
	if last == nil {
		last = root.Find("__no_match__")
	}
	return last, ""
}

// Text returns the cleaned text of the first selector with non-blank text
func (c Cascade) Text(root finder) string {
	for _, sel := range c {
		found := root.Find(sel)
		if found.Length() == 0 {
			continue
		}
		if text := CleanText(found.First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// Attr returns the first non-blank value of any of attrs on the first
// element matched by each selector, in cascade order.
func (c Cascade) Attr(root finder, attrs ...string) string {
	for _, sel := range c {
		found := root.Find(sel)
		if found.Length() == 0 {
			continue
		}
		if value := firstAttr(found.First(), attrs...); value != "" {
			return value
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, attrs ...string) string {
	for _, attr := range attrs {
		if value, exists := s.Attr(attr); exists {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}
