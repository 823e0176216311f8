package workflow

import (
	"reflect"
	"sort"
	"strings"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// CanApprove reports whether every document the template requires is
// present and non-empty in the step's documents sub-map. The second
// result lists the missing keys, sorted.
func CanApprove(tpl domain.StepTemplate, step *domain.Step) (bool, []string) {
	var docs map[string]any
	if step != nil {
		docs = step.Data.Documents()
	}
	var missing []string
	for _, key := range tpl.RequiredDocuments {
		if !isPresent(docs[key]) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// missingFields lists required keys absent or empty in data.
func missingFields(required []string, data domain.StepData) []string {
	var missing []string
	for _, key := range required {
		if !isPresent(data[key]) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// isPresent: non-blank strings, non-empty maps and slices, any other non-nil.
func isPresent(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}
