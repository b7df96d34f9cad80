package rules

import (
	"errors"
	"testing"

	"github.com/valyala/fastjson"

	"github.com/solatis/intervalq/internal/types"
)

func mustParse(t *testing.T, s string) *fastjson.Value {
	t.Helper()
	v, err := fastjson.Parse(s)
	if err != nil {
		t.Fatalf("fastjson.Parse(%s) error = %v", s, err)
	}
	return v
}

func TestCoerceInt(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{`0`, 0, false},
		{`-1`, -1, false},
		{`42`, 42, false},
		{`4.0`, 4, false},
		{`1e2`, 100, false},
		{`"17"`, 17, false},
		{`" 8 "`, 8, false},
		{`1.5`, 0, true},
		{`"1.5"`, 0, true},
		{`"ten"`, 0, true},
		{`true`, 0, true},
		{`null`, 0, true},
		{`[1]`, 0, true},
		{`3000000000`, 0, true},
	}

	for _, tt := range tests {
		got, err := coerceInt(mustParse(t, tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceInt(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("coerceInt(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCoerceInt_FractionMessage(t *testing.T) {
	_, err := coerceInt(mustParse(t, `2.25`))
	if !errors.Is(err, errNotInteger) {
		t.Fatalf("coerceInt(2.25) error = %v, want errNotInteger", err)
	}
	if got, want := err.Error(), "expected an integer, got [2.25]"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`"true"`, true, false},
		{`"false"`, false, false},
		{`"TRUE"`, true, false},
		{`"yes"`, false, true},
		{`1`, false, true},
		{`null`, false, true},
	}

	for _, tt := range tests {
		got, err := coerceBool(mustParse(t, tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceBool(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceBool(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCoerceString(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{`"hello"`, "hello", false},
		{`""`, "", false},
		{`12`, "12", false},
		{`1.50`, "1.50", false},
		{`true`, "true", false},
		{`null`, "", true},
		{`{}`, "", true},
	}

	for _, tt := range tests {
		got, err := coerceString(mustParse(t, tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceString(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceString(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCoerceFloat(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{`1`, 1, false},
		{`2.5`, 2.5, false},
		{`"0.25"`, 0.25, false},
		{`"NaN"`, 0, true},
		{`"x"`, 0, true},
		{`false`, 0, true},
	}

	for _, tt := range tests {
		got, err := coerceFloat(mustParse(t, tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceFloat(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("coerceFloat(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestEditDistance(t *testing.T) {
	auto := types.AutoFuzziness()
	tests := []struct {
		fuzziness types.Fuzziness
		length    int
		want      int
	}{
		{auto, 0, 0},
		{auto, 2, 0},
		{auto, 3, 1},
		{auto, 5, 1},
		{auto, 6, 2},
		{auto, 20, 2},
		{types.Fuzziness{Auto: true, AutoLow: 1, AutoHigh: 2}, 1, 1},
		{types.Fuzziness{Auto: true, AutoLow: 1, AutoHigh: 2}, 2, 2},
		{types.Fuzziness{Edits: 1}, 10, 1},
		{types.Fuzziness{Edits: 0}, 10, 0},
	}

	for _, tt := range tests {
		if got := editDistance(tt.fuzziness, tt.length); got != tt.want {
			t.Errorf("editDistance(%+v, %d) = %d, want %d", tt.fuzziness, tt.length, got, tt.want)
		}
	}
}
