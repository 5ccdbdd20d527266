package report

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedJSONRegex matches ```json ... ``` blocks in agent output.
var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractTaskReport extracts a TaskReport embedded anywhere in free-form
// agent output. Agent output is adversarial by nature: the payload may sit
// inside surrounding prose, a fenced code block, or not exist at all. On
// any failure the returned report is a default-filled pessimistic one with
// status=failed — a fail-safe, never a silent success.
func ExtractTaskReport(taskID, output string) *TaskReport {
	for _, candidate := range payloadCandidates(output) {
		var r TaskReport
		if err := json.Unmarshal([]byte(candidate), &r); err != nil {
			continue
		}
		if !validTaskStatus(r.Status) {
			continue
		}
		if r.TaskID == "" {
			r.TaskID = taskID
		}
		r.normalize()
		return &r
	}
	return FallbackTaskReport(taskID)
}

// FallbackTaskReport builds the default-filled report used when no
// structured payload could be extracted.
func FallbackTaskReport(taskID string) *TaskReport {
	r := &TaskReport{
		TaskID: taskID,
		Status: StatusFailed,
		Error:  "no structured report found in agent output",
	}
	r.normalize()
	return r
}

// ExtractReviewResult extracts a ReviewResult embedded anywhere in
// free-form reviewer output. Malformed or empty output yields a
// changes_requested result with empty lists, never an error.
func ExtractReviewResult(reviewerID, output string) *ReviewResult {
	for _, candidate := range payloadCandidates(output) {
		var r ReviewResult
		if err := json.Unmarshal([]byte(candidate), &r); err != nil {
			continue
		}
		if !validReviewStatus(r.Status) {
			continue
		}
		if r.Reviewer == "" {
			r.Reviewer = reviewerID
		}
		r.normalize()
		return &r
	}
	return FallbackReviewResult(reviewerID)
}

// FallbackReviewResult builds the pessimistic default review result.
func FallbackReviewResult(reviewerID string) *ReviewResult {
	r := &ReviewResult{
		Reviewer: reviewerID,
		Status:   ReviewChangesRequested,
	}
	r.normalize()
	return r
}

// payloadCandidates returns JSON object candidates from output, fenced
// blocks first, then bare brace-matched objects.
func payloadCandidates(output string) []string {
	var candidates []string
	for _, match := range fencedJSONRegex.FindAllStringSubmatch(output, -1) {
		if len(match) >= 2 {
			candidates = append(candidates, match[1])
		}
	}
	candidates = append(candidates, braceMatchedObjects(output)...)
	return candidates
}

// braceMatchedObjects finds top-level {...} spans in text by depth
// counting, skipping braces inside JSON strings.
func braceMatchedObjects(text string) []string {
	var objects []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				objects = append(objects, strings.TrimSpace(text[start:i+1]))
				start = -1
			}
		}
	}
	return objects
}

func validTaskStatus(s Status) bool {
	switch s {
	case StatusDone, StatusBlocked, StatusFailed:
		return true
	default:
		return false
	}
}

func validReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewApproved, ReviewChangesRequested:
		return true
	default:
		return false
	}
}
