// Package runconfig loads and validates the declarative run configuration
// that drives the pipeline: which source supplies metrics, how they are
// transformed, and which model measures impact.
//
// Processing is staged: read the file, parse it, deep-merge the user
// document over the bundled defaults, validate structure, validate
// parameters against the per-model schema, then inject derived fields.
// Structural problems are reported before parameter problems, and each
// stage collects every violation instead of stopping at the first.
package runconfig

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsData []byte

//go:embed schemas.yaml
var schemasData []byte

var (
	loadOnce     sync.Once
	baseDefaults map[string]any
	modelSchemas map[string]map[string]any
)

func loadEmbedded() {
	loadOnce.Do(func() {
		if err := yaml.Unmarshal(defaultsData, &baseDefaults); err != nil {
			panic(eris.Wrap(err, "runconfig: parse embedded defaults").Error())
		}
		if err := yaml.Unmarshal(schemasData, &modelSchemas); err != nil {
			panic(eris.Wrap(err, "runconfig: parse embedded schemas").Error())
		}
	})
}

// Defaults returns a copy of the bundled default document.
func Defaults() map[string]any {
	loadEmbedded()
	return deepCopy(baseDefaults)
}

// ModelSchema returns the parameter schema for a model type. The second
// return value reports whether a schema is known; unknown model types skip
// strict parameter validation.
func ModelSchema(modelType string) (map[string]any, bool) {
	loadEmbedded()
	schema, ok := modelSchemas[modelType]
	if !ok {
		return nil, false
	}
	return deepCopy(schema), true
}

// KnownModels returns the model types with bundled parameter schemas.
func KnownModels() []string {
	loadEmbedded()
	names := make([]string, 0, len(modelSchemas))
	for name := range modelSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document is a fully merged and validated run configuration.
type Document map[string]any

// Load reads a YAML or JSON configuration file and runs the full
// processing pipeline.
func Load(path string) (Document, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, eris.Errorf("runconfig: configuration file not found: %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runconfig: stat %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("runconfig: path is not a file: %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "runconfig: read %s", path)
	}

	user, err := parseDocument(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return FromMap(user)
}

// FromMap runs merge, validation, and injection on an already parsed user
// document. A nil map yields the defaults, which fail validation on the
// required null leaves.
func FromMap(user map[string]any) (Document, error) {
	merged := DeepMerge(Defaults(), user)

	if violations := validateStructure(merged); len(violations) > 0 {
		return nil, &ValidationError{Kind: KindStructure, Violations: violations}
	}
	if violations := validateParameters(merged); len(violations) > 0 {
		return nil, &ValidationError{Kind: KindParameter, Violations: violations}
	}

	injectEnrichmentStart(merged)
	return Document(merged), nil
}

// parseDocument decodes raw config bytes. Extension picks the decoder;
// without one, JSON is tried first and YAML second.
func parseDocument(raw []byte, ext string) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, eris.Wrap(err, "runconfig: parse configuration file")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, eris.Wrap(err, "runconfig: parse configuration file")
		}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			if yerr := yaml.Unmarshal(raw, &doc); yerr != nil {
				return nil, eris.Wrap(yerr, "runconfig: parse configuration file")
			}
		}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// DeepMerge merges override onto base: shared nested maps merge key by
// key, any other value is replaced wholesale. Neither input is mutated.
func DeepMerge(base, override map[string]any) map[string]any {
	result := deepCopy(base)
	for key, value := range override {
		existing, haveBase := result[key]
		baseMap, baseIsMap := existing.(map[string]any)
		overMap, overIsMap := value.(map[string]any)
		if haveBase && baseIsMap && overIsMap {
			result[key] = DeepMerge(baseMap, overMap)
			continue
		}
		result[key] = deepCopyValue(value)
	}
	return result
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopy(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// injectEnrichmentStart copies ENRICHMENT.PARAMS.enrichment_start into
// DATA.TRANSFORM.PARAMS so transforms see the enrichment boundary without
// reading the enrichment section. Re-running it is a no-op.
func injectEnrichmentStart(doc map[string]any) {
	enrichment := mapAt(doc, "DATA", "ENRICHMENT")
	if enrichment == nil {
		return
	}
	params := mapAt(enrichment, "PARAMS")
	start, ok := params["enrichment_start"]
	if !ok {
		return
	}
	transformParams := ensureMap(ensureMap(ensureMap(doc, "DATA"), "TRANSFORM"), "PARAMS")
	transformParams["enrichment_start"] = start
}

// mapAt walks nested maps along path, returning nil when any hop is
// missing or not a map.
func mapAt(m map[string]any, path ...string) map[string]any {
	current := m
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// ensureMap returns m[key] as a map, creating it if missing or not a map.
func ensureMap(m map[string]any, key string) map[string]any {
	if existing, ok := m[key].(map[string]any); ok {
		return existing
	}
	created := map[string]any{}
	m[key] = created
	return created
}

func stringAt(m map[string]any, path ...string) string {
	parent := m
	if len(path) > 1 {
		parent = mapAt(m, path[:len(path)-1]...)
		if parent == nil {
			return ""
		}
	}
	s, _ := parent[path[len(path)-1]].(string)
	return s
}

// Render serializes the document back to YAML, as persisted alongside run
// artifacts.
func (d Document) Render() ([]byte, error) {
	out, err := yaml.Marshal(map[string]any(d))
	if err != nil {
		return nil, eris.Wrap(err, "runconfig: render document")
	}
	return out, nil
}

// SourceSpec is the typed view of DATA.SOURCE.
type SourceSpec struct {
	Type   string
	Config map[string]any
}

// Path returns CONFIG.path.
func (s SourceSpec) Path() string { return stringValue(s.Config["path"]) }

// StartDate returns CONFIG.start_date, empty when unset.
func (s SourceSpec) StartDate() string { return stringValue(s.Config["start_date"]) }

// EndDate returns CONFIG.end_date, empty when unset.
func (s SourceSpec) EndDate() string { return stringValue(s.Config["end_date"]) }

// TransformSpec is the typed view of DATA.TRANSFORM.
type TransformSpec struct {
	Function string
	Params   map[string]any
}

// MeasurementSpec is the typed view of MEASUREMENT.
type MeasurementSpec struct {
	Model  string
	Params map[string]any
}

// EnrichmentSpec is the typed view of DATA.ENRICHMENT.
type EnrichmentSpec struct {
	Function string
	Params   map[string]any
}

// Source returns the DATA.SOURCE view.
func (d Document) Source() SourceSpec {
	source := mapAt(d, "DATA", "SOURCE")
	spec := SourceSpec{
		Type:   stringAt(source, "type"),
		Config: mapAt(source, "CONFIG"),
	}
	if spec.Config == nil {
		spec.Config = map[string]any{}
	}
	if spec.Type == "" {
		spec.Type = "simulator"
	}
	return spec
}

// Transform returns the DATA.TRANSFORM view, defaulting to passthrough.
func (d Document) Transform() TransformSpec {
	transform := mapAt(d, "DATA", "TRANSFORM")
	spec := TransformSpec{
		Function: stringAt(transform, "FUNCTION"),
		Params:   mapAt(transform, "PARAMS"),
	}
	if spec.Function == "" {
		spec.Function = "passthrough"
	}
	if spec.Params == nil {
		spec.Params = map[string]any{}
	}
	return spec
}

// Measurement returns the MEASUREMENT view.
func (d Document) Measurement() MeasurementSpec {
	measurement := mapAt(d, "MEASUREMENT")
	spec := MeasurementSpec{
		Model:  stringAt(measurement, "MODEL"),
		Params: mapAt(measurement, "PARAMS"),
	}
	if spec.Params == nil {
		spec.Params = map[string]any{}
	}
	return spec
}

// Enrichment returns the DATA.ENRICHMENT view and whether it is configured.
func (d Document) Enrichment() (EnrichmentSpec, bool) {
	enrichment := mapAt(d, "DATA", "ENRICHMENT")
	if enrichment == nil {
		return EnrichmentSpec{}, false
	}
	spec := EnrichmentSpec{
		Function: stringAt(enrichment, "FUNCTION"),
		Params:   mapAt(enrichment, "PARAMS"),
	}
	if spec.Params == nil {
		spec.Params = map[string]any{}
	}
	return spec, true
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
