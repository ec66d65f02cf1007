package pipeline

import (
	"regexp"
	"strings"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

const minLivenessLength = 100
const minTextLines = 3

var loadingMarkerPattern = regexp.MustCompile(`\bNaN\b|undefined items|of NaN pages`)

// validateLiveness applies §4.2.1's heuristic checks to trimmed content,
// returning a *domain.Error with the specific rejection code on failure.
func validateLiveness(trimmed string, mode domain.ContentMode) error {
	if len(trimmed) < minLivenessLength {
		return domain.New(domain.CodeContentTooShort, "content shorter than minimum liveness length")
	}
	if containsLoadingMarker(trimmed) {
		return domain.New(domain.CodeContentContainsLoadingMarkers, "content contains a loading marker")
	}
	if mode == domain.ContentModeText {
		if countNonEmptyLines(trimmed) < minTextLines {
			return domain.New(domain.CodeContentInsufficientLines, "text mode content has too few non-empty lines")
		}
	}
	return nil
}

func containsLoadingMarker(content string) bool {
	if strings.Contains(content, "Loading...") {
		return true
	}
	if containsStandaloneWord(content, "loading") {
		return true
	}
	return loadingMarkerPattern.MatchString(content)
}

// containsStandaloneWord reports whether word appears in content as a
// whole word (case-sensitive, matching the spec's literal "loading").
func containsStandaloneWord(content, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(content)
}

func countNonEmptyLines(content string) int {
	lines := strings.Split(content, "\n")
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}
