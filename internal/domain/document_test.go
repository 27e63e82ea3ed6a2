package domain

import (
	"testing"
)

func TestNewDocument(t *testing.T) {
	t.Parallel()

	doc, err := NewDocument("paper.pdf", "Abstract. We study things.")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Source != DocumentSourceLocal {
		t.Errorf("Expected local source, got %s", doc.Source)
	}

	if _, err := NewDocument("", "text"); err != ErrEmptyDocumentFilename {
		t.Errorf("Expected %v, got %v", ErrEmptyDocumentFilename, err)
	}
	if _, err := NewDocument("paper.pdf", ""); err != ErrEmptyContent {
		t.Errorf("Expected %v, got %v", ErrEmptyContent, err)
	}
}

func TestNewRagflowDocument(t *testing.T) {
	t.Parallel()

	doc, err := NewRagflowDocument("remote.pdf", "ds-1", "doc-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.HasArtifact(TaskTypeIngestSync) {
		t.Error("Expected no synced text before ingest")
	}

	if _, err := NewRagflowDocument("remote.pdf", "", "doc-1"); err != ErrMissingRagflowRef {
		t.Errorf("Expected %v, got %v", ErrMissingRagflowRef, err)
	}
}

func TestDocumentArtifacts(t *testing.T) {
	t.Parallel()

	doc, _ := NewDocument("paper.pdf", "text")
	if doc.HasArtifact(TaskTypeSummary) {
		t.Error("Expected no summary yet")
	}

	if err := doc.SetArtifact(TaskTypeSummary, "short summary"); err != nil {
		t.Fatalf("SetArtifact: %v", err)
	}
	if !doc.HasArtifact(TaskTypeSummary) {
		t.Error("Expected summary to be present")
	}
	if err := doc.SetArtifact(TaskType("bogus"), "x"); err != ErrUnknownTaskType {
		t.Errorf("Expected %v, got %v", ErrUnknownTaskType, err)
	}
}
