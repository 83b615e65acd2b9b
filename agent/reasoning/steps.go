// Package reasoning splits free-form model answers into display steps.
//
// The segmentation is heuristic. Callers must treat the result as a rendering
// aid only: when no step markers are found the whole answer comes back as a
// single step.
package reasoning

import (
	"regexp"
	"strings"
)

var (
	// "Step 1:", "step 2 -", "**Step 3.**"
	stepMarker = regexp.MustCompile(`(?im)^[ \t>*_#]*step[ \t]+(\d+)[ \t]*[:.)\-]*[*_]*[ \t]*`)
	// "1.", "2)" at the start of a line
	listMarker = regexp.MustCompile(`(?m)^[ \t]*(\d+)[.)][ \t]+`)
)

// Steps segments text into ordered reasoning steps. Explicit "Step N"
// markers win over numbered lists. Text before the first marker is dropped
// when at least two steps are found, since it is usually a preamble.
func Steps(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if steps := split(text, stepMarker); len(steps) >= 2 {
		return steps
	}
	if steps := split(text, listMarker); len(steps) >= 2 {
		return steps
	}
	return []string{text}
}

func split(text string, marker *regexp.Regexp) []string {
	locs := marker.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	steps := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if s := strings.TrimSpace(text[loc[1]:end]); s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}
