package document

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeJSON reads a document from its JSON wire form.
func DecodeJSON(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.IsEmpty() {
		return nil, ErrEmptyDocument
	}
	return &doc, nil
}
