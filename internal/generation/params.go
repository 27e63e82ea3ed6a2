package generation

import (
	"fmt"
	"sort"

	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Parameter names accepted at launch.
const (
	ParamLength      = "length"
	ParamHostVoice   = "host_voice"
	ParamExpertVoice = "expert_voice"
)

// Script length guidance values.
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// paramRules lists, per task type, the accepted parameters and their allowed
// values. A nil value set accepts any non-empty string.
var paramRules = map[domain.TaskType]map[string][]string{
	domain.TaskTypeSummary:    {},
	domain.TaskTypeScript:     {ParamLength: {LengthShort, LengthMedium, LengthLong}},
	domain.TaskTypeAudio:      {ParamHostVoice: nil, ParamExpertVoice: nil},
	domain.TaskTypeIngestSync: {},
}

// ValidateParams checks launch parameters against what taskType accepts.
func ValidateParams(taskType domain.TaskType, params map[string]string) error {
	rules, ok := paramRules[taskType]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTaskType, taskType)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		allowed, known := rules[name]
		if !known {
			return fmt.Errorf("%w: %s does not accept %q", ErrInvalidParams, taskType, name)
		}
		value := params[name]
		if value == "" {
			return fmt.Errorf("%w: %q must not be empty", ErrInvalidParams, name)
		}
		if allowed != nil && !contains(allowed, value) {
			return fmt.Errorf("%w: %q must be one of %v", ErrInvalidParams, name, allowed)
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
