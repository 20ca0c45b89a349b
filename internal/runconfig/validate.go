package runconfig

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ValidationKind distinguishes the two validation stages.
type ValidationKind string

const (
	// KindStructure covers missing sections and required fields.
	KindStructure ValidationKind = "structure"
	// KindParameter covers value-level problems: dates, model params.
	KindParameter ValidationKind = "parameter"
)

// Violation is a single validation finding, tagged with the dotted path of
// the offending field.
type Violation struct {
	Path    string
	Message string
}

// ValidationError aggregates every violation found by one validation
// stage. Structural violations are reported before parameter validation
// runs, so a single error never mixes the two kinds.
type ValidationError struct {
	Kind       ValidationKind
	Violations []Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("Configuration ")
	b.WriteString(string(e.Kind))
	b.WriteString(" errors:")
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// Paths returns the dotted paths of all violations, in report order.
func (e *ValidationError) Paths() []string {
	paths := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		paths[i] = v.Path
	}
	return paths
}

// validateStructure checks required sections and fields on the merged
// document. File sources only need a path; every other source type also
// needs the retrieval date range.
func validateStructure(doc map[string]any) []Violation {
	var violations []Violation
	add := func(path, message string) {
		violations = append(violations, Violation{Path: path, Message: message})
	}

	if !hasKey(doc, "DATA") {
		add("DATA", "Missing required section: DATA")
	}
	if !hasKey(doc, "MEASUREMENT") {
		add("MEASUREMENT", "Missing required section: MEASUREMENT")
	}

	data := mapAt(doc, "DATA")
	if !hasKey(data, "SOURCE") {
		add("DATA.SOURCE", "Missing required field: DATA.SOURCE")
	} else {
		source := mapAt(data, "SOURCE")
		if !hasKey(source, "type") {
			add("DATA.SOURCE.type", "Missing required field: DATA.SOURCE.type")
		}
		if !hasKey(source, "CONFIG") {
			add("DATA.SOURCE.CONFIG", "Missing required field: DATA.SOURCE.CONFIG")
		} else {
			sourceConfig := mapAt(source, "CONFIG")
			required := []string{"path", "start_date", "end_date"}
			if sourceType(source) == "file" {
				required = []string{"path"}
			}
			for _, field := range required {
				if v, present := sourceConfig[field]; !present || v == nil {
					path := "DATA.SOURCE.CONFIG." + field
					add(path, "Missing required field: "+path)
				}
			}
		}
	}

	measurement := mapAt(doc, "MEASUREMENT")
	if !hasKey(measurement, "MODEL") {
		add("MEASUREMENT.MODEL", "Missing required field: MEASUREMENT.MODEL")
	}
	if !hasKey(measurement, "PARAMS") {
		add("MEASUREMENT.PARAMS", "Missing required field: MEASUREMENT.PARAMS")
	}

	return violations
}

func sourceType(source map[string]any) string {
	if t, ok := source["type"].(string); ok && t != "" {
		return strings.ToLower(t)
	}
	return "simulator"
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// validateParameters checks value-level constraints on the merged
// document: date formats, date ordering, and model parameters. For model
// types with a bundled schema, defaults are merged into MEASUREMENT.PARAMS
// and the user's keys are checked against the schema; unknown model types
// skip this and defer to the adapter's ValidateParams.
func validateParameters(doc map[string]any) []Violation {
	var violations []Violation
	add := func(path, message string) {
		violations = append(violations, Violation{Path: path, Message: message})
	}

	sourceConfig := mapAt(doc, "DATA", "SOURCE", "CONFIG")
	startRaw := stringValue(sourceConfig["start_date"])
	endRaw := stringValue(sourceConfig["end_date"])

	var start, end time.Time
	var startOK, endOK bool
	if startRaw != "" {
		var err error
		if start, err = time.Parse("2006-01-02", startRaw); err != nil {
			add("DATA.SOURCE.CONFIG.start_date",
				fmt.Sprintf("Invalid date format for DATA.SOURCE.CONFIG.start_date: '%s'. Expected YYYY-MM-DD", startRaw))
		} else {
			startOK = true
		}
	}
	if endRaw != "" {
		var err error
		if end, err = time.Parse("2006-01-02", endRaw); err != nil {
			add("DATA.SOURCE.CONFIG.end_date",
				fmt.Sprintf("Invalid date format for DATA.SOURCE.CONFIG.end_date: '%s'. Expected YYYY-MM-DD", endRaw))
		} else {
			endOK = true
		}
	}
	if startOK && endOK && start.After(end) {
		add("DATA.SOURCE.CONFIG.start_date",
			fmt.Sprintf("DATA.SOURCE.CONFIG.start_date (%s) must be before or equal to end_date (%s)", startRaw, endRaw))
	}

	violations = append(violations, validateModelParams(doc)...)
	return violations
}

func validateModelParams(doc map[string]any) []Violation {
	measurement := mapAt(doc, "MEASUREMENT")
	modelType := stringAt(measurement, "MODEL")

	schema, known := ModelSchema(modelType)
	if !known {
		zap.L().Debug("no parameter schema for model, deferring validation to adapter",
			zap.String("model", modelType))
		return nil
	}

	params := mapAt(measurement, "PARAMS")
	if params == nil {
		params = map[string]any{}
	}

	var unexpected []string
	for key := range params {
		if _, ok := schema[key]; !ok {
			unexpected = append(unexpected, key)
		}
	}

	// Merge schema defaults under the user's params so adapters see the
	// complete parameter set.
	merged := DeepMerge(schema, params)
	measurement["PARAMS"] = merged

	var violations []Violation
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		violations = append(violations, Violation{
			Path: "MEASUREMENT.PARAMS",
			Message: fmt.Sprintf("Unexpected parameters for model '%s': [%s]",
				modelType, strings.Join(unexpected, ", ")),
		})
	}

	required := make([]string, 0, len(schema))
	for key, defaultValue := range schema {
		if defaultValue == nil {
			required = append(required, key)
		}
	}
	sort.Strings(required)
	for _, key := range required {
		if merged[key] == nil {
			violations = append(violations, Violation{
				Path: "MEASUREMENT.PARAMS." + key,
				Message: fmt.Sprintf("Parameter '%s' for model '%s' must be provided by user",
					key, modelType),
			})
		}
	}

	return violations
}
