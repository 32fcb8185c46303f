// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// DocumentKind is the sniffed content family of an uploaded buffer.
type DocumentKind string

// Document kind constants. Buffer evidence always wins over the filename.
const (
	KindPDF     DocumentKind = "pdf"
	KindImage   DocumentKind = "image"
	KindCSV     DocumentKind = "csv"
	KindOFX     DocumentKind = "ofx"
	KindText    DocumentKind = "text"
	KindUnknown DocumentKind = "unknown"
)

// DocType is the caller-declared document type.
type DocType string

const (
	// DocTypeBankStatement is a multi-transaction statement.
	DocTypeBankStatement DocType = "bank_statement"
	// DocTypeReceipt is a receipt or single-total invoice.
	DocTypeReceipt DocType = "receipt"
)

// Label returns a human-friendly label for prompts and summaries.
func (d DocType) Label() string {
	switch d {
	case DocTypeBankStatement:
		return "bank statement"
	case DocTypeReceipt:
		return "receipt"
	default:
		return "document"
	}
}

// RawDocument is the immutable upload input. It is consumed once by the
// extraction router and discarded; only a redacted copy may be stored.
type RawDocument struct {
	FileName string
	Kind     DocumentKind
	Data     []byte
}

// DocumentStatus tracks the lifecycle of a stored document.
type DocumentStatus string

const (
	// StatusProcessing means the pipeline has not reached a terminal state.
	StatusProcessing DocumentStatus = "processing"
	// StatusCompleted is terminal.
	StatusCompleted DocumentStatus = "completed"
	// StatusFailed is terminal.
	StatusFailed DocumentStatus = "failed"
)

// StoredDocument is the canonical persisted entity, owned by the document store.
type StoredDocument struct {
	UploadedAt       time.Time
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	ID               string
	UserID           string
	FileName         string
	Summary          string
	RedactedURL      string
	ContentHash      string
	DocType          DocType
	Status           DocumentStatus
	TransactionCount int
	TotalDebits      float64
	TotalCredits     float64
}

// NormalizeText canonicalizes extracted text for content hashing so re-scans
// of the same statement with different encodings still deduplicate.
func NormalizeText(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	return strings.Join(fields, " ")
}

// ContentHash computes the deduplication key from normalized extracted text.
func ContentHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return fmt.Sprintf("%x", sum)
}
