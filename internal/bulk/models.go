package bulk

import (
	"time"

	"github.com/shopspring/decimal"
)

// FileStatus is the aggregate state of an uploaded batch.
type FileStatus string

const (
	StatusProcessing        FileStatus = "PROCESSING"
	StatusCompleted         FileStatus = "COMPLETED"
	StatusPartiallyAccepted FileStatus = "PARTIALLY_ACCEPTED"
	StatusRejected          FileStatus = "REJECTED"
)

// IntegrityMode selects the per-record rejection policy for a batch.
type IntegrityMode string

const (
	// PartialRejection rejects invalid records individually and accepts the
	// rest.
	PartialRejection IntegrityMode = "PARTIAL_REJECTION"
	// FullRejection rejects the entire file when any single record is
	// invalid.
	FullRejection IntegrityMode = "FULL_REJECTION"
)

// File is the persisted state of one uploaded batch. TargetStatus is
// precomputed at submission; Status flips to it once enough status polls
// have been observed.
type File struct {
	FileID         string          `json:"file_id" db:"file_id"`
	ConsentID      string          `json:"consent_id" db:"consent_id"`
	TPPID          string          `json:"tpp_id" db:"tpp_id"`
	IdempotencyKey string          `json:"idempotency_key" db:"idempotency_key"`
	RequestHash    string          `json:"request_hash" db:"request_hash"`
	FileName       string          `json:"file_name" db:"file_name"`
	IntegrityMode  IntegrityMode   `json:"integrity_mode" db:"integrity_mode"`
	Status         FileStatus      `json:"status" db:"status"`
	TargetStatus   FileStatus      `json:"target_status" db:"target_status"`
	PollCount      int             `json:"poll_count" db:"poll_count"`
	TotalCount     int             `json:"total_count" db:"total_count"`
	AcceptedCount  int             `json:"accepted_count" db:"accepted_count"`
	RejectedCount  int             `json:"rejected_count" db:"rejected_count"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

func (f *File) BelongsToTPP(tppID string) bool {
	return f.TPPID == tppID
}

// Terminal reports whether the file has reached its final status.
func (f *File) Terminal() bool {
	return f.Status != StatusProcessing
}

// AdvanceProcessing counts one status poll and flips the file to its
// precomputed target status once pollsToComplete polls have been seen.
// It returns the updated file and whether anything changed.
func (f File) AdvanceProcessing(pollsToComplete int, now time.Time) (File, bool) {
	if f.Terminal() {
		return f, false
	}
	f.PollCount++
	if f.PollCount >= pollsToComplete {
		f.Status = f.TargetStatus
		f.CompletedAt = &now
	}
	return f, true
}

// ItemResult is the per-record outcome within a batch report.
type ItemResult struct {
	LineNumber    int             `json:"line_number" db:"line_number"`
	InstructionID string          `json:"instruction_id" db:"instruction_id"`
	PayeeIBAN     string          `json:"payee_iban" db:"payee_iban"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Accepted      bool            `json:"accepted" db:"accepted"`
	ErrorMessage  string          `json:"error_message,omitempty" db:"error_message"`
}

// Report aggregates the per-record outcomes of one batch. It is computed once
// at submission and never recomputed.
type Report struct {
	FileID        string       `json:"file_id" db:"file_id"`
	Status        FileStatus   `json:"status" db:"status"`
	TotalCount    int          `json:"total_count" db:"total_count"`
	AcceptedCount int          `json:"accepted_count" db:"accepted_count"`
	RejectedCount int          `json:"rejected_count" db:"rejected_count"`
	Items         []ItemResult `json:"items"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// SubmitCommand carries one bulk file upload. FileHash is the caller-supplied
// content digest checked against a recomputed hash of Content.
type SubmitCommand struct {
	TPPID          string
	ConsentID      string
	IdempotencyKey string
	InteractionID  string
	FileName       string
	IntegrityMode  IntegrityMode
	Content        []byte
	FileHash       string
}

// UploadResult is the synchronous response to a file submission.
type UploadResult struct {
	FileID        string     `json:"file_id"`
	Status        FileStatus `json:"status"`
	InteractionID string     `json:"interaction_id"`
	Replayed      bool       `json:"replayed"`
	AcceptedCount int        `json:"accepted_count"`
	RejectedCount int        `json:"rejected_count"`
	CreatedAt     time.Time  `json:"created_at"`
}
