// Package document defines the structured content model consumed by the
// narration engine and the segmenter that flattens it into speakable units.
package document

// Document is a structured piece of long-form content. It is treated as
// read-only once loaded; the narration engine never mutates it.
type Document struct {
	Title          string    `json:"title"`
	Introduction   []string  `json:"introduction,omitempty"`
	LearningPoints []string  `json:"learningPoints,omitempty"`
	Sections       []Section `json:"sections,omitempty"`
}

// Section is a heading with either a single body, an ordered list of body
// items, or both, optionally nested one level into subsections.
type Section struct {
	Heading     string    `json:"heading"`
	Body        string    `json:"body,omitempty"`
	Items       []string  `json:"items,omitempty"`
	Subsections []Section `json:"subsections,omitempty"`
}

// IsEmpty reports whether the document has no speakable content at all.
func (d *Document) IsEmpty() bool {
	if d.Title != "" || len(d.Introduction) > 0 || len(d.LearningPoints) > 0 {
		return false
	}
	return len(d.Sections) == 0
}

// Kind identifies what part of the document a segment came from.
// It only influences presentation (highlight styling); reading order is
// fully determined by the segment index.
type Kind int

const (
	// KindTitle is the document title.
	KindTitle Kind = iota
	// KindParagraph is an introduction paragraph or a section body item.
	KindParagraph
	// KindHeading is a section or subsection heading.
	KindHeading
	// KindLearningPoint is one learning point, including the lead-in phrase.
	KindLearningPoint
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTitle:
		return "title"
	case KindParagraph:
		return "paragraph"
	case KindHeading:
		return "heading"
	case KindLearningPoint:
		return "learning-point"
	default:
		return "unknown"
	}
}

// Segment is one unit of text the engine synthesizes and narrates atomically.
// Segments are 0-indexed and immutable; their order is reading order.
type Segment struct {
	Index int
	Text  string
	Kind  Kind
}
