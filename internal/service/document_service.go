package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/platform/logger"
	"github.com/phrazzld/audiopaper-api/internal/store"
)

// CreateDocumentRequest registers a document. Either Text is set (a local
// document) or both Ragflow IDs are (a document synced by ingest_sync).
type CreateDocumentRequest struct {
	Filename          string
	Text              string
	RagflowDatasetID  string
	RagflowDocumentID string
}

// DocumentService provides the minimal document plumbing tasks run against.
type DocumentService interface {
	CreateDocument(ctx context.Context, req CreateDocumentRequest) (*domain.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error)
}

type documentServiceImpl struct {
	docs   store.DocumentStore
	logger *slog.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(docs store.DocumentStore, logger *slog.Logger) (DocumentService, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: docs cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &documentServiceImpl{
		docs:   docs,
		logger: logger.With(slog.String("component", "document_service")),
	}, nil
}

// CreateDocument implements DocumentService.CreateDocument
func (s *documentServiceImpl) CreateDocument(
	ctx context.Context,
	req CreateDocumentRequest,
) (*domain.Document, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		doc *domain.Document
		err error
	)
	if req.RagflowDatasetID != "" || req.RagflowDocumentID != "" {
		doc, err = domain.NewRagflowDocument(req.Filename, req.RagflowDatasetID, req.RagflowDocumentID)
	} else {
		doc, err = domain.NewDocument(req.Filename, req.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		log.Error("failed to save document", slog.String("error", err.Error()))
		return nil, NewTaskServiceError("create_document", "failed to save document", err)
	}

	log.Info("document created",
		slog.String("document_id", doc.ID.String()),
		slog.String("source", string(doc.Source)))
	return doc, nil
}

// GetDocument implements DocumentService.GetDocument
func (s *documentServiceImpl) GetDocument(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, NewTaskServiceError("get_document", "failed to retrieve document", err)
	}
	return doc, nil
}
