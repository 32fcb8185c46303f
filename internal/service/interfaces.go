// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/paperflow/internal/model"
)

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Document operations
	FindDocumentByHash(ctx context.Context, userID, contentHash string) (*model.StoredDocument, error)
	SaveDocumentWithTransactions(ctx context.Context, doc *model.StoredDocument, txns []model.StoredTransaction) error
	GetDocumentByID(ctx context.Context, id, userID string) (*model.StoredDocument, error)
	GetTransactionsByDocumentID(ctx context.Context, documentID, userID string) ([]model.StoredTransaction, error)
	ListDocuments(ctx context.Context, userID string) ([]model.StoredDocument, error)

	// Categorization rule operations
	GetRulesForUser(ctx context.Context, userID string) ([]model.CategorizationRule, error)
	SaveRule(ctx context.Context, rule *model.CategorizationRule) error
	IncrementRuleMatchCount(ctx context.Context, ruleID int64) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// OCRResult is the per-page output of an optical recognition engine.
type OCRResult struct {
	Text       string
	Confidence float64
}

// OCRClient is the narrow contract for an external optical recognition
// engine. Implementations live outside the pipeline core.
type OCRClient interface {
	Recognize(ctx context.Context, imageBytes []byte) (OCRResult, error)
}

// ChatMessage is a single message in an LLM chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is the provider-agnostic shape of a chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the completion content.
type ChatResponse struct {
	Content string
}

// LLMClient is the contract for chat completion providers. Categorization
// uses it with JSON-constrained output, summarization with prose output.
type LLMClient interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
