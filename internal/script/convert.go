package script

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/solatis/intervalq/internal/intervals"
)

// GoToStarlark converts a script parameter to a Starlark value.
// Supported types: nil, string, int, int64, float64, bool, []any, map[string]any.
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil

	case int:
		return starlark.MakeInt(val), nil

	case int64:
		return starlark.MakeInt64(val), nil

	case float64:
		return starlark.Float(val), nil

	case bool:
		return starlark.Bool(val), nil

	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := GoToStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil

	case map[string]any:
		return paramsDict(val)

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// paramsDict converts a parameter map, inserting keys in sorted order so
// iteration inside scripts is deterministic.
func paramsDict(params map[string]any) (*starlark.Dict, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dict := starlark.NewDict(len(params))
	for _, k := range keys {
		sv, err := GoToStarlark(params[k])
		if err != nil {
			return nil, fmt.Errorf("dict key %q: %w", k, err)
		}
		if err := dict.SetKey(starlark.String(k), sv); err != nil {
			return nil, fmt.Errorf("dict setkey %q: %w", k, err)
		}
	}
	return dict, nil
}

// intervalValue exposes a candidate interval to scripts as
// interval.start, interval.end and interval.gaps.
func intervalValue(iv intervals.Interval) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("interval"), starlark.StringDict{
		"start": starlark.MakeInt(iv.Start),
		"end":   starlark.MakeInt(iv.End),
		"gaps":  starlark.MakeInt(iv.Gaps),
	})
}
