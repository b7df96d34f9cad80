package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/solatis/intervalq/internal/types"
)

// fuzzinessField parses "AUTO", "AUTO:low,high" or an edit count of 0..2.
func fuzzinessField(v *fastjson.Value) (types.Fuzziness, error) {
	if v.Type() == fastjson.TypeString {
		s := strings.TrimSpace(string(v.GetStringBytes()))
		if strings.EqualFold(s, "AUTO") {
			return types.AutoFuzziness(), nil
		}
		if len(s) > 5 && strings.EqualFold(s[:5], "AUTO:") {
			return parseAutoBounds(s, s[5:])
		}
	}

	n, err := coerceInt(v)
	if err != nil {
		return types.Fuzziness{}, invalidValue("fuzzy", "fuzziness", v, err)
	}
	if n < 0 || n > types.MaxEditDistance {
		return types.Fuzziness{}, outOfRange("fuzzy", "fuzziness",
			fmt.Sprintf("must be AUTO or between 0 and %d, got [%d]", types.MaxEditDistance, n))
	}
	return types.Fuzziness{Edits: n}, nil
}

func parseAutoBounds(raw, bounds string) (types.Fuzziness, error) {
	invalid := outOfRange("fuzzy", "fuzziness",
		fmt.Sprintf("expected AUTO:low,high with 0 <= low <= high, got [%s]", raw))

	lowStr, highStr, ok := strings.Cut(bounds, ",")
	if !ok {
		return types.Fuzziness{}, invalid
	}
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return types.Fuzziness{}, invalid
	}
	high, err := strconv.Atoi(strings.TrimSpace(highStr))
	if err != nil {
		return types.Fuzziness{}, invalid
	}
	if low < 0 || high < low {
		return types.Fuzziness{}, invalid
	}
	return types.Fuzziness{Auto: true, AutoLow: low, AutoHigh: high}, nil
}

// editDistance resolves f against a term of n runes.
func editDistance(f types.Fuzziness, n int) int {
	if !f.Auto {
		return f.Edits
	}
	switch {
	case n < f.AutoLow:
		return 0
	case n < f.AutoHigh:
		return 1
	default:
		return 2
	}
}
