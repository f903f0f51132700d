package domain

// Extraction is the result of projecting a record into a document.
// Dropped lists the configured fields left out of the document and why,
// so a partially extracted document is never silently incomplete.
type Extraction struct {
	Document *Document
	Dropped  []FieldError
}

// DroppedFields returns the names of the dropped fields.
func (e *Extraction) DroppedFields() []string {
	out := make([]string, 0, len(e.Dropped))
	for _, d := range e.Dropped {
		out = append(out, d.Field)
	}
	return out
}
