package ragflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/audiopaper-api/internal/domain"
	"github.com/phrazzld/audiopaper-api/internal/generation"
)

// contentSource is the part of Client the ingest operation needs.
type contentSource interface {
	DocumentContent(ctx context.Context, datasetID, documentID string) (string, error)
}

// IngestOperation implements generation.Operation for ingest_sync.
type IngestOperation struct {
	source contentSource
}

var _ generation.Operation = (*IngestOperation)(nil)

// NewIngestOperation creates the ingest_sync operation.
func NewIngestOperation(source contentSource) *IngestOperation {
	return &IngestOperation{source: source}
}

// Invoke implements generation.Operation. The artifact content is the
// document text; the result points back at the Ragflow document.
func (o *IngestOperation) Invoke(
	ctx context.Context,
	in generation.Input,
	emit generation.EmitFunc,
) (generation.Artifact, error) {
	doc := in.Document
	if doc.Source != domain.DocumentSourceRagflow {
		return generation.Artifact{}, fmt.Errorf("%w: document %s is not a ragflow document", generation.ErrEmptyInput, doc.ID)
	}

	text, err := o.source.DocumentContent(ctx, doc.RagflowDatasetID, doc.RagflowDocumentID)
	if err != nil {
		return generation.Artifact{}, err
	}
	if strings.TrimSpace(text) == "" {
		return generation.Artifact{}, fmt.Errorf("%w: ragflow document has no parsed content", generation.ErrEmptyInput)
	}

	return generation.Artifact{
		Content: text,
		Ref:     fmt.Sprintf("ragflow:%s/%s", doc.RagflowDatasetID, doc.RagflowDocumentID),
	}, nil
}
