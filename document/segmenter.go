package document

import (
	"strings"
	"unicode/utf8"
)

// LearningPointsLead is spoken once before the learning points themselves.
const LearningPointsLead = "Here's what you'll learn."

// Flatten converts a document into its flat, ordered list of speakable
// segments: title, introduction paragraphs, learning points (with a lead-in
// phrase), then each section's heading and content, recursing one level into
// subsections. Empty strings are dropped. Flatten is pure: calling it twice
// on the same document yields equal results.
func Flatten(doc *Document) []Segment {
	if doc == nil {
		return nil
	}

	var out []Segment
	add := func(text string, kind Kind) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		out = append(out, Segment{Index: len(out), Text: text, Kind: kind})
	}

	add(doc.Title, KindTitle)
	for _, p := range doc.Introduction {
		add(p, KindParagraph)
	}

	if hasLearningPoints(doc.LearningPoints) {
		add(LearningPointsLead, KindLearningPoint)
		for _, p := range doc.LearningPoints {
			add(p, KindLearningPoint)
		}
	}

	for _, sec := range doc.Sections {
		flattenSection(&sec, add)
	}

	return out
}

func flattenSection(sec *Section, add func(string, Kind)) {
	add(sec.Heading, KindHeading)
	add(sec.Body, KindParagraph)
	for _, item := range sec.Items {
		add(item, KindParagraph)
	}
	for _, sub := range sec.Subsections {
		add(sub.Heading, KindHeading)
		add(sub.Body, KindParagraph)
		for _, item := range sub.Items {
			add(item, KindParagraph)
		}
	}
}

func hasLearningPoints(points []string) bool {
	for _, p := range points {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

// Chars returns the number of characters in a segment, the unit the quota
// tracker budgets in.
func Chars(s Segment) int {
	return utf8.RuneCountInString(s.Text)
}

// TotalChars sums the character counts of segments[from:].
func TotalChars(segments []Segment, from int) int {
	if from < 0 {
		from = 0
	}
	total := 0
	for i := from; i < len(segments); i++ {
		total += Chars(segments[i])
	}
	return total
}
