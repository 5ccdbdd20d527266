package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// Usage holds token counts reported by one agent invocation.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// UsageParser extracts token counts from agent output. Agent output is
// unreliable; parsing is best-effort and absent counts read as zero.
type UsageParser struct {
	jsonPattern *regexp.Regexp
	linePattern *regexp.Regexp
}

// NewUsageParser creates a UsageParser.
func NewUsageParser() *UsageParser {
	return &UsageParser{
		// JSON usage fields: "input_tokens": 1500 / "output_tokens": 500
		jsonPattern: regexp.MustCompile(`(?i)"(input|output)_tokens"\s*:\s*(\d+)`),
		// Status-line format: "1.5K input, 500 output" or "1500 in / 500 out"
		linePattern: regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*([KkMm])?\s*(?:input|in)\s*[,/|]\s*(\d+(?:[.,]\d+)?)\s*([KkMm])?\s*(?:output|out)`),
	}
}

// Parse extracts token counts from output. When multiple matches exist the
// last one wins, since status lines repeat with running totals.
func (p *UsageParser) Parse(output string) Usage {
	var usage Usage

	if matches := p.jsonPattern.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		for _, m := range matches {
			n, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			if strings.EqualFold(m[1], "input") {
				usage.InputTokens = n
			} else {
				usage.OutputTokens = n
			}
		}
		if usage.InputTokens > 0 || usage.OutputTokens > 0 {
			return usage
		}
	}

	matches := p.linePattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return usage
	}
	last := matches[len(matches)-1]
	usage.InputTokens = parseTokenCount(last[1], last[2])
	usage.OutputTokens = parseTokenCount(last[3], last[4])
	return usage
}

// parseTokenCount converts "1.5" + "K" style matches into a token count.
func parseTokenCount(num, suffix string) int64 {
	num = strings.ReplaceAll(num, ",", ".")
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(suffix) {
	case "K":
		f *= 1_000
	case "M":
		f *= 1_000_000
	}
	return int64(f)
}
