// Package index defines the inverted-index data model: the closed set of
// indexed email fields, postings with term positions, per-document metadata
// used for date filtering and result resolution, and the batch types handed
// to the store on commit.
package index

import "strings"

// Field identifies one indexed email field. The set is closed; the on-disk
// layout and the query parser's field validation both depend on it.
type Field string

const (
	FieldSubject   Field = "subject"
	FieldBody      Field = "body"
	FieldSender    Field = "sender"
	FieldRecipient Field = "recipient"
)

// Fields lists every indexed field in storage order.
var Fields = []Field{FieldSubject, FieldBody, FieldSender, FieldRecipient}

// ParseField maps a case-insensitive field name to its Field, reporting
// whether the name is recognised.
func ParseField(name string) (Field, bool) {
	switch Field(strings.ToLower(name)) {
	case FieldSubject:
		return FieldSubject, true
	case FieldBody:
		return FieldBody, true
	case FieldSender:
		return FieldSender, true
	case FieldRecipient:
		return FieldRecipient, true
	}
	return "", false
}
