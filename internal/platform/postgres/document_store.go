package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// PostgresDocumentStore implements the store.DocumentStore interface using PostgreSQL
type PostgresDocumentStore struct {
	db store.DBTX
}

var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// NewPostgresDocumentStore creates a new PostgresDocumentStore
func NewPostgresDocumentStore(db store.DBTX) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: db}
}

// Create implements store.DocumentStore.
func (s *PostgresDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, filename, text, source, ragflow_dataset_id, ragflow_document_id,
			summary, script, audio_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		doc.ID, doc.Filename, doc.Text, string(doc.Source),
		doc.RagflowDatasetID, doc.RagflowDocumentID,
		doc.Summary, doc.Script, doc.AudioRef,
		doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(),
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Get implements store.DocumentStore.
func (s *PostgresDocumentStore) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var (
		doc    domain.Document
		source string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, text, source, ragflow_dataset_id, ragflow_document_id,
		       summary, script, audio_ref, created_at, updated_at
		FROM documents WHERE id = $1
	`, id).Scan(
		&doc.ID, &doc.Filename, &doc.Text, &source,
		&doc.RagflowDatasetID, &doc.RagflowDocumentID,
		&doc.Summary, &doc.Script, &doc.AudioRef,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundAs(err, store.ErrDocumentNotFound)
	}
	doc.Source = domain.DocumentSource(source)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

// artifactColumns maps each task type to the document column holding its artifact.
var artifactColumns = map[domain.TaskType]string{
	domain.TaskTypeSummary:    "summary",
	domain.TaskTypeScript:     "script",
	domain.TaskTypeAudio:      "audio_ref",
	domain.TaskTypeIngestSync: "text",
}

// SaveArtifact implements store.DocumentStore.
func (s *PostgresDocumentStore) SaveArtifact(
	ctx context.Context,
	id uuid.UUID,
	taskType domain.TaskType,
	value string,
) error {
	column, ok := artifactColumns[taskType]
	if !ok {
		return domain.ErrUnknownTaskType
	}

	query := fmt.Sprintf(`UPDATE documents SET %s = $1, updated_at = $2 WHERE id = $3`, column)
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(res, "document"); err != nil {
		return store.ErrDocumentNotFound
	}
	return nil
}
