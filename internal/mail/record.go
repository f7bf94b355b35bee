// Package mail defines the email record types exchanged with the external
// .eml ingestion pipeline and the compact result records returned by search.
package mail

import "time"

// EmailRecord is one parsed email as produced by the ingestion pipeline.
// Records are immutable once handed to the indexer. BodyText and BodyHTML
// are both optional; Attachments holds opaque blob IDs managed elsewhere.
type EmailRecord struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	Recipients  []string  `json:"recipients"`
	Subject     string    `json:"subject"`
	BodyText    string    `json:"body_text,omitempty"`
	BodyHTML    string    `json:"body_html,omitempty"`
	Date        time.Time `json:"date"`
	Attachments []string  `json:"attachments,omitempty"`
}

// ResultRecord is the per-document view returned to search callers.
type ResultRecord struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	Subject    string    `json:"subject"`
	Date       time.Time `json:"date"`
}
