// Package mbox splits mboxrd thread archives into per-message header records.
package mbox

import "strings"

// Field identifies a recognised header line.
type Field int

// Recognised header fields. Unrecognized lines are ignored by the splitter.
const (
	Unrecognized Field = iota
	FieldFrom
	FieldTo
	FieldDate
	FieldSubject
	FieldReviewedBy
)

func (f Field) String() string {
	switch f {
	case FieldFrom:
		return "from"
	case FieldTo:
		return "to"
	case FieldDate:
		return "date"
	case FieldSubject:
		return "subject"
	case FieldReviewedBy:
		return "reviewed-by"
	default:
		return "unrecognized"
	}
}

// headerPrefixes maps line prefixes to fields. Matching is case-sensitive and
// anchored at the start of the line.
var headerPrefixes = []struct {
	prefix string
	field  Field
}{
	{"From:", FieldFrom},
	{"To:", FieldTo},
	{"Date:", FieldDate},
	{"Subject:", FieldSubject},
	{"Reviewed-by:", FieldReviewedBy},
}

// Classify reports which header line starts and returns its trimmed value.
func Classify(line string) (Field, string) {
	for _, hp := range headerPrefixes {
		if strings.HasPrefix(line, hp.prefix) {
			return hp.field, strings.TrimSpace(line[len(hp.prefix):])
		}
	}
	return Unrecognized, ""
}
