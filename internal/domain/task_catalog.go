package domain

import (
	"fmt"
	"sort"
)

// TaskTypeInfo describes how a task type is presented and where it sits in
// the document pipeline.
type TaskTypeInfo struct {
	Type  TaskType
	Label string
	Icon  string
	// StageIndex orders the generation pipeline; ingest_sync sits outside it.
	StageIndex int
	// Prerequisite is the stage whose artifact must exist before this one
	// may run. Empty means no prerequisite.
	Prerequisite TaskType
	// Streamable task types support the token-streaming endpoint.
	Streamable bool
}

var taskCatalog = map[TaskType]TaskTypeInfo{
	TaskTypeSummary: {
		Type:       TaskTypeSummary,
		Label:      "Summary",
		Icon:       "📝",
		StageIndex: 1,
		Streamable: true,
	},
	TaskTypeScript: {
		Type:         TaskTypeScript,
		Label:        "Narration script",
		Icon:         "🎙",
		StageIndex:   2,
		Prerequisite: TaskTypeSummary,
		Streamable:   true,
	},
	TaskTypeAudio: {
		Type:         TaskTypeAudio,
		Label:        "Audio",
		Icon:         "🔊",
		StageIndex:   3,
		Prerequisite: TaskTypeScript,
	},
	TaskTypeIngestSync: {
		Type:       TaskTypeIngestSync,
		Label:      "Index sync",
		Icon:       "🔄",
		StageIndex: 0,
	},
}

// LookupTaskType returns the catalog entry for t, or ErrUnknownTaskType.
func LookupTaskType(t TaskType) (TaskTypeInfo, error) {
	info, ok := taskCatalog[t]
	if !ok {
		return TaskTypeInfo{}, fmt.Errorf("%w: %q", ErrUnknownTaskType, string(t))
	}
	return info, nil
}

// ParseTaskType converts a raw path or flag value into a known TaskType.
func ParseTaskType(raw string) (TaskType, error) {
	info, err := LookupTaskType(TaskType(raw))
	if err != nil {
		return "", err
	}
	return info.Type, nil
}

// TaskTypes returns all catalog entries ordered by stage index.
func TaskTypes() []TaskTypeInfo {
	infos := make([]TaskTypeInfo, 0, len(taskCatalog))
	for _, info := range taskCatalog {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StageIndex < infos[j].StageIndex
	})
	return infos
}

// ValidateTaskCatalog checks the catalog for internal consistency. It is
// called at startup so a broken entry fails fast instead of falling through
// to a generic default at runtime.
func ValidateTaskCatalog() error {
	return validateCatalog(taskCatalog)
}

func validateCatalog(catalog map[TaskType]TaskTypeInfo) error {
	stages := make(map[int]TaskType, len(catalog))
	for key, info := range catalog {
		if info.Type != key {
			return fmt.Errorf("%w: catalog key %q holds entry for %q", ErrValidation, key, info.Type)
		}
		if info.Label == "" || info.Icon == "" {
			return fmt.Errorf("%w: task type %q is missing a label or icon", ErrValidation, key)
		}
		if other, dup := stages[info.StageIndex]; dup {
			return fmt.Errorf("%w: task types %q and %q share stage index %d",
				ErrValidation, other, key, info.StageIndex)
		}
		stages[info.StageIndex] = key

		if info.Prerequisite == "" {
			continue
		}
		prereq, ok := catalog[info.Prerequisite]
		if !ok {
			return fmt.Errorf("%w: task type %q depends on unknown type %q",
				ErrValidation, key, info.Prerequisite)
		}
		if prereq.StageIndex >= info.StageIndex {
			return fmt.Errorf("%w: task type %q must come after its prerequisite %q",
				ErrValidation, key, info.Prerequisite)
		}
	}
	return nil
}
