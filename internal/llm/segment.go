package llm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
)

var markerRe = regexp.MustCompile(`(?m)^[ \t]*=== IMAGE (\d+) ===[ \t]*$`)

// Output is the segmented reply of one Enhance call, keyed by 0-based page index.
type Output struct {
	pages map[int]string
}

// PageText returns the transcription of a requested page.
func (o *Output) PageText(index int) (string, bool) {
	text, ok := o.pages[index]
	return text, ok
}

// PagePDF always reports false; this engine returns text only and the
// writeback lays it over the source page.
func (o *Output) PagePDF(int) (*domain.PageRef, bool) { return nil, false }

// Pages returns how many segments were recovered.
func (o *Output) Pages() int { return len(o.pages) }

// segment splits reply on image markers. Marker n holds the text of the
// n-th attached image, that is of page requested[n-1]. Markers outside
// 1..len(requested) are discarded; for duplicated markers the first one wins.
func segment(reply string, requested []int) *Output {
	out := &Output{pages: make(map[int]string, len(requested))}
	seen := make(map[int]bool, len(requested))
	locs := markerRe.FindAllStringSubmatchIndex(reply, -1)
	for i, loc := range locs {
		n, err := strconv.Atoi(reply[loc[2]:loc[3]])
		if err != nil || n < 1 || n > len(requested) || seen[n] {
			continue
		}
		seen[n] = true
		end := len(reply)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out.pages[requested[n-1]] = strings.TrimSpace(reply[loc[1]:end])
	}
	return out
}

// dropLastSegment cuts reply before its last marker.
func dropLastSegment(reply string) string {
	locs := markerRe.FindAllStringIndex(reply, -1)
	if len(locs) == 0 {
		return ""
	}
	return reply[:locs[len(locs)-1][0]]
}
