package document

import (
	"reflect"
	"testing"
)

// TestFlattenOrder tests that segments come out in document order.
func TestFlattenOrder(t *testing.T) {
	doc := &Document{
		Title:          "Title",
		Introduction:   []string{"Intro one.", "Intro two."},
		LearningPoints: []string{"Point A", "Point B"},
		Sections: []Section{
			{
				Heading: "Section A",
				Body:    "Body A.",
				Subsections: []Section{
					{Heading: "Sub A1", Items: []string{"Item 1", "Item 2"}},
				},
			},
			{Heading: "Section B", Items: []string{"B item"}},
		},
	}

	want := []string{
		"Title",
		"Intro one.", "Intro two.",
		LearningPointsLead, "Point A", "Point B",
		"Section A", "Body A.",
		"Sub A1", "Item 1", "Item 2",
		"Section B", "B item",
	}

	got := Flatten(doc)
	if len(got) != len(want) {
		t.Fatalf("Flatten() returned %d segments, want %d", len(got), len(want))
	}
	for i, seg := range got {
		if seg.Text != want[i] {
			t.Errorf("segment %d = %q, want %q", i, seg.Text, want[i])
		}
		if seg.Index != i {
			t.Errorf("segment %d has Index %d", i, seg.Index)
		}
	}
}

// TestFlattenSkipsEmpty tests that empty and whitespace-only strings are dropped.
func TestFlattenSkipsEmpty(t *testing.T) {
	doc := &Document{
		Title:        "T",
		Introduction: []string{"", "  ", "Real."},
		Sections: []Section{
			{Heading: "H", Body: "", Items: []string{"", "x"}},
		},
	}

	got := Flatten(doc)
	want := []string{"T", "Real.", "H", "x"}
	if len(got) != len(want) {
		t.Fatalf("Flatten() returned %d segments, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Text != want[i] {
			t.Errorf("segment %d = %q, want %q", i, got[i].Text, want[i])
		}
	}
}

// TestFlattenNoLearningPoints tests that the lead-in phrase only appears when
// points exist.
func TestFlattenNoLearningPoints(t *testing.T) {
	tests := []struct {
		name   string
		points []string
		lead   bool
	}{
		{"nil points", nil, false},
		{"empty points", []string{"", " "}, false},
		{"real points", []string{"A"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Title: "T", LearningPoints: tt.points}
			segs := Flatten(doc)
			found := false
			for _, s := range segs {
				if s.Text == LearningPointsLead {
					found = true
				}
			}
			if found != tt.lead {
				t.Errorf("lead-in present = %v, want %v", found, tt.lead)
			}
		})
	}
}

// TestFlattenPure tests that Flatten has no side effects on its input and is
// repeatable.
func TestFlattenPure(t *testing.T) {
	doc := &Document{
		Title:        "T",
		Introduction: []string{"A", "B"},
		Sections:     []Section{{Heading: "H", Body: "Body"}},
	}

	first := Flatten(doc)
	second := Flatten(doc)
	if !reflect.DeepEqual(first, second) {
		t.Error("Flatten() is not repeatable on the same document")
	}
}

// TestFlattenKinds tests segment kind assignment.
func TestFlattenKinds(t *testing.T) {
	doc := &Document{
		Title:          "T",
		Introduction:   []string{"P"},
		LearningPoints: []string{"L"},
		Sections:       []Section{{Heading: "H"}},
	}

	segs := Flatten(doc)
	wantKinds := []Kind{KindTitle, KindParagraph, KindLearningPoint, KindLearningPoint, KindHeading}
	if len(segs) != len(wantKinds) {
		t.Fatalf("got %d segments, want %d", len(segs), len(wantKinds))
	}
	for i, k := range wantKinds {
		if segs[i].Kind != k {
			t.Errorf("segment %d kind = %v, want %v", i, segs[i].Kind, k)
		}
	}
}

// TestChars tests character counting in runes, not bytes.
func TestChars(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"hello", 5},
		{"", 0},
		{"héllo", 5},
		{"日本語", 3},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Chars(Segment{Text: tt.text}); got != tt.want {
				t.Errorf("Chars(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

// TestTotalChars tests suffix sums used by the time estimator.
func TestTotalChars(t *testing.T) {
	segs := []Segment{{Text: "ab"}, {Text: "cde"}, {Text: "f"}}

	tests := []struct {
		from int
		want int
	}{
		{0, 6},
		{1, 4},
		{2, 1},
		{3, 0},
		{-1, 6},
	}

	for _, tt := range tests {
		if got := TotalChars(segs, tt.from); got != tt.want {
			t.Errorf("TotalChars(from=%d) = %d, want %d", tt.from, got, tt.want)
		}
	}
}

// TestFlattenNil tests the nil document edge case.
func TestFlattenNil(t *testing.T) {
	if got := Flatten(nil); got != nil {
		t.Errorf("Flatten(nil) = %v, want nil", got)
	}
}
