package bulk

import "context"

// FilePort persists batch aggregates. FindByID returns nil with a nil error
// when the file does not exist.
type FilePort interface {
	Save(ctx context.Context, file *File) error
	FindByID(ctx context.Context, fileID string) (*File, error)
}

// ReportPort persists per-record reports.
type ReportPort interface {
	Save(ctx context.Context, report *Report) error
	FindByFileID(ctx context.Context, fileID string) (*Report, error)
}

// EventPort publishes the file-accepted domain event once per submission.
type EventPort interface {
	PublishBulkFileSubmitted(ctx context.Context, file *File) error
}
