package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/ebrossard/meteo-vanoise/internal/models"
	"github.com/ebrossard/meteo-vanoise/internal/riskrules"
)

// riskKeywords maps the fixed scrape vocabulary to risk levels, ordered
// highest severity first so the first match wins. The words are the French
// danger-scale adjectives used on the public massif page; the digit patterns
// only match standalone digits to avoid altitude figures.
var riskKeywords = []struct {
	word  string
	digit *regexp.Regexp
	level int
}{
	{"fort", regexp.MustCompile(`(^|[^\d])4([^\d]|$)`), 4},
	{"marqué", regexp.MustCompile(`(^|[^\d])3([^\d]|$)`), 3},
	{"limité", regexp.MustCompile(`(^|[^\d])2([^\d]|$)`), 2},
	{"faible", regexp.MustCompile(`(^|[^\d])1([^\d]|$)`), 1},
}

// classSelectors is the best-effort set of class names whose element text is
// scanned first. The page markup is unversioned, so none matching is an
// expected case, not an error.
var classSelectors = []string{"bulletin", "risque", "avalanche", "danger"}

var (
	classTextRe = map[string]*regexp.Regexp{}
	tagRe       = regexp.MustCompile(`<[^>]+>`)
)

func init() {
	for _, sel := range classSelectors {
		classTextRe[sel] = regexp.MustCompile(`class="[^"]*` + sel + `[^"]*"[^>]*>([^<]+)`)
	}
}

// ScanRisk extracts a single risk level from unstructured massif-page
// markup. It scans the concatenated text of the class selectors, falling
// back to the tag-stripped whole document, and returns the highest-severity
// keyword found. No recognizable keyword yields the default level 3.
func ScanRisk(page []byte) int {
	text := strings.ToLower(selectorText(page))
	if strings.TrimSpace(text) == "" {
		text = strings.ToLower(tagRe.ReplaceAllString(string(page), " "))
	}

	for _, kw := range riskKeywords {
		if strings.Contains(text, kw.word) {
			return kw.level
		}
		if kw.digit.MatchString(text) {
			return kw.level
		}
	}
	return riskrules.DefaultRisk
}

// selectorText concatenates the immediate text of every element whose class
// attribute contains one of the selectors.
func selectorText(page []byte) string {
	var b strings.Builder
	doc := string(page)
	for _, sel := range classSelectors {
		for _, m := range classTextRe[sel].FindAllStringSubmatch(doc, -1) {
			b.WriteString(m[1])
			b.WriteString(" ")
		}
	}
	return b.String()
}

// ParseHeuristic scrapes the risk scalar from the massif page and
// synthesizes the rest of the bulletin through the risk rules. Only the
// scalar comes from the page; this tier is degraded-confidence by design.
func ParseHeuristic(page []byte, massif, sourceURL string, now time.Time) models.Bulletin {
	level := ScanRisk(page)
	b := riskrules.Synthesize(massif, level, models.SourceHeuristic, sourceURL,
		"Risk level scraped from the public massif page; detail fields are estimated.", now)
	return b
}
