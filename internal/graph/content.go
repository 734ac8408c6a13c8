package graph

import (
	"regexp"
	"strings"
)

const (
	thinkingEndsMarker  = "<<<<THINKING_ENDS>>>>"
	reportStartsMarker  = "<<<<REPORT_STARTS>>>>"
	revisedTrueMarker   = "<<<<REVISED:true>>>>"
	revisedFalseMarker  = "<<<<REVISED:false>>>>"
)

var functionCallSentinel = regexp.MustCompile(`(?s)<\|FunctionCallBegin\|>.*?<\|FunctionCallEnd\|>`)

// ExtractContent partitions raw model output into thinking and report
// sections using the two sentinel markers, per §4.2: everything before
// THINKING_ENDS is thinking, everything after REPORT_STARTS is the report;
// if neither marker is present the whole text is thinking.
func ExtractContent(raw string) (thinking, report string) {
	raw = stripFunctionCallSentinels(raw)

	thinkIdx := strings.Index(raw, thinkingEndsMarker)
	reportIdx := strings.Index(raw, reportStartsMarker)

	switch {
	case thinkIdx == -1 && reportIdx == -1:
		return strings.TrimSpace(raw), ""
	case thinkIdx != -1 && reportIdx != -1:
		thinking = strings.TrimSpace(raw[:thinkIdx])
		report = strings.TrimSpace(raw[reportIdx+len(reportStartsMarker):])
		return thinking, report
	case thinkIdx != -1:
		thinking = strings.TrimSpace(raw[:thinkIdx])
		report = strings.TrimSpace(raw[thinkIdx+len(thinkingEndsMarker):])
		return thinking, report
	default:
		// only REPORT_STARTS present
		thinking = strings.TrimSpace(raw[:reportIdx])
		report = strings.TrimSpace(raw[reportIdx+len(reportStartsMarker):])
		return thinking, report
	}
}

func stripFunctionCallSentinels(raw string) string {
	return functionCallSentinel.ReplaceAllString(raw, "")
}

// ExtractRevised parses the structured revised-flag footer a debate
// responder appends, per DESIGN.md Open Question 1's redesign. Returns
// (content with the marker stripped, revised, markerFound).
func ExtractRevised(raw string) (content string, revised bool, found bool) {
	if strings.Contains(raw, revisedTrueMarker) {
		return strings.TrimSpace(strings.ReplaceAll(raw, revisedTrueMarker, "")), true, true
	}
	if strings.Contains(raw, revisedFalseMarker) {
		return strings.TrimSpace(strings.ReplaceAll(raw, revisedFalseMarker, "")), false, true
	}
	return strings.TrimSpace(raw), false, false
}
