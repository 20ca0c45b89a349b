// Package transform reshapes retrieved metrics ahead of model fitting.
// Transforms are pure functions over frames, looked up by the FUNCTION
// name in the DATA.TRANSFORM section of a run configuration.
package transform

import (
	"github.com/rotisserie/eris"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

// Func is a transform: it takes the retrieved metrics and the
// DATA.TRANSFORM.PARAMS map and returns a new frame. Implementations must
// not mutate their input.
type Func func(f *frame.Frame, params map[string]any) (*frame.Frame, error)

// Transforms holds every registered transform function.
var Transforms = registry.NewFuncs[Func]("transform")

// Apply runs the named transform over f. An empty name is a configuration
// error; unknown names fail with the registry's key listing.
func Apply(f *frame.Frame, function string, params map[string]any) (*frame.Frame, error) {
	if function == "" {
		return nil, eris.New("transform: configuration must name a FUNCTION")
	}
	fn, err := Transforms.Get(function)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	out, err := fn(f, params)
	if err != nil {
		return nil, eris.Wrapf(err, "transform: %s failed", function)
	}
	return out, nil
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
