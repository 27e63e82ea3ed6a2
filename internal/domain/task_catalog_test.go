package domain

import (
	"errors"
	"testing"
)

func TestValidateTaskCatalog(t *testing.T) {
	t.Parallel()

	if err := ValidateTaskCatalog(); err != nil {
		t.Fatalf("Expected built-in catalog to be valid, got %v", err)
	}
}

func TestValidateCatalog_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		catalog map[TaskType]TaskTypeInfo
	}{
		{
			name: "mismatched key",
			catalog: map[TaskType]TaskTypeInfo{
				TaskTypeSummary: {Type: TaskTypeScript, Label: "x", Icon: "x", StageIndex: 1},
			},
		},
		{
			name: "missing label",
			catalog: map[TaskType]TaskTypeInfo{
				TaskTypeSummary: {Type: TaskTypeSummary, Icon: "x", StageIndex: 1},
			},
		},
		{
			name: "duplicate stage",
			catalog: map[TaskType]TaskTypeInfo{
				TaskTypeSummary: {Type: TaskTypeSummary, Label: "a", Icon: "a", StageIndex: 1},
				TaskTypeScript:  {Type: TaskTypeScript, Label: "b", Icon: "b", StageIndex: 1},
			},
		},
		{
			name: "unknown prerequisite",
			catalog: map[TaskType]TaskTypeInfo{
				TaskTypeScript: {Type: TaskTypeScript, Label: "b", Icon: "b", StageIndex: 2, Prerequisite: TaskTypeSummary},
			},
		},
		{
			name: "prerequisite after dependent",
			catalog: map[TaskType]TaskTypeInfo{
				TaskTypeSummary: {Type: TaskTypeSummary, Label: "a", Icon: "a", StageIndex: 3},
				TaskTypeScript:  {Type: TaskTypeScript, Label: "b", Icon: "b", StageIndex: 2, Prerequisite: TaskTypeSummary},
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := validateCatalog(tc.catalog); !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestParseTaskType(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"summary", "script", "audio", "ingest_sync"} {
		if _, err := ParseTaskType(raw); err != nil {
			t.Errorf("ParseTaskType(%q) returned %v", raw, err)
		}
	}
	if _, err := ParseTaskType("transcript"); !errors.Is(err, ErrUnknownTaskType) {
		t.Errorf("Expected ErrUnknownTaskType, got %v", err)
	}
}

func TestTaskTypes_OrderedByStage(t *testing.T) {
	t.Parallel()

	infos := TaskTypes()
	if len(infos) != 4 {
		t.Fatalf("Expected 4 task types, got %d", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].StageIndex >= infos[i].StageIndex {
			t.Errorf("Expected ascending stage order, got %v", infos)
		}
	}
	if infos[len(infos)-1].Type != TaskTypeAudio {
		t.Errorf("Expected audio to be the last stage, got %s", infos[len(infos)-1].Type)
	}
}
