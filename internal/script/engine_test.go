package script

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/solatis/intervalq/internal/intervals"
	"github.com/solatis/intervalq/internal/types"
)

func TestCompile_Accept(t *testing.T) {
	tests := []struct {
		name   string
		script types.Script
		iv     intervals.Interval
		want   bool
	}{
		{
			name:   "gap check passes",
			script: types.Script{Source: "interval.gaps == 0"},
			iv:     intervals.Interval{Start: 1, End: 2},
			want:   true,
		},
		{
			name:   "gap check fails",
			script: types.Script{Source: "interval.gaps == 0"},
			iv:     intervals.Interval{Start: 1, End: 4, Gaps: 2},
			want:   false,
		},
		{
			name:   "params",
			script: types.Script{Source: `interval.end - interval.start < params["width"]`, Params: map[string]any{"width": int64(3)}},
			iv:     intervals.Interval{Start: 5, End: 7},
			want:   true,
		},
		{
			name:   "nested params",
			script: types.Script{Source: `interval.start in params["starts"]`, Params: map[string]any{"starts": []any{int64(1), int64(4)}}},
			iv:     intervals.Interval{Start: 4, End: 9},
			want:   true,
		},
		{
			name:   "explicit lang",
			script: types.Script{Source: "True", Lang: "starlark"},
			want:   true,
		},
		{
			name:   "trailing comment",
			script: types.Script{Source: "interval.start > 2 # keep late matches"},
			iv:     intervals.Interval{Start: 3, End: 3},
			want:   true,
		},
		{
			name:   "non-bool result rejects",
			script: types.Script{Source: "interval.start"},
			iv:     intervals.Interval{Start: 3, End: 3},
			want:   false,
		},
		{
			name:   "runtime error rejects",
			script: types.Script{Source: "interval.start // 0 == 1"},
			iv:     intervals.Interval{Start: 3, End: 3},
			want:   false,
		},
	}

	e := NewEngine(10000, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := e.Compile(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, factory.NewFilter().Accept(tt.iv))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  types.Script
		wantMsg string
	}{
		{"syntax error", types.Script{Source: "interval.start >"}, "failed to compile script [interval.start >]"},
		{"undefined name", types.Script{Source: "foo(interval)"}, "undefined: foo"},
		{"statement", types.Script{Source: "x = 1"}, "failed to compile script [x = 1]"},
		{"other lang", types.Script{Source: "true", Lang: "painless"}, "unsupported lang [painless]"},
		{"bad params", types.Script{Source: "True", Params: map[string]any{"ch": make(chan int)}}, "invalid params"},
	}

	e := NewEngine(0, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Compile(tt.script)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrScript))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFilter_StepBudget(t *testing.T) {
	loop := types.Script{Source: "len([i for i in range(100000)]) > 0"}

	limited, err := NewEngine(100, nil).Compile(loop)
	require.NoError(t, err)
	f := limited.NewFilter()
	assert.False(t, f.Accept(intervals.Interval{}))
	// budget is per call, so a cheap call after an expensive one still runs
	cheap, err := NewEngine(100, nil).Compile(types.Script{Source: "True"})
	require.NoError(t, err)
	cf := cheap.NewFilter()
	for i := 0; i < 50; i++ {
		assert.True(t, cf.Accept(intervals.Interval{Start: i, End: i}))
	}

	unlimited, err := NewEngine(0, nil).Compile(loop)
	require.NoError(t, err)
	assert.True(t, unlimited.NewFilter().Accept(intervals.Interval{}))
}

func TestFilter_LogsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := NewEngine(0, zap.New(core))

	factory, err := e.Compile(types.Script{Source: "interval.start // interval.end > 0"})
	require.NoError(t, err)
	f := factory.NewFilter()
	for i := 0; i < 3; i++ {
		assert.False(t, f.Accept(intervals.Interval{Start: 1, End: 0}))
	}

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "script filter rejected interval", entry.Message)
	assert.Equal(t, "interval.start // interval.end > 0", entry.ContextMap()["script"])
}

func TestFactory_ConcurrentFilters(t *testing.T) {
	factory, err := NewEngine(1000, nil).Compile(types.Script{
		Source: `interval.start % params["mod"] == 0`,
		Params: map[string]any{"mod": int64(2)},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f := factory.NewFilter()
			for i := 0; i < 200; i++ {
				if f.Accept(intervals.Interval{Start: i, End: i}) != (i%2 == 0) {
					errs <- "unexpected result"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}
}

func TestGoToStarlark(t *testing.T) {
	v, err := GoToStarlark(map[string]any{
		"s": "x",
		"i": 3,
		"f": 1.5,
		"b": true,
		"n": nil,
		"l": []any{"a", int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"b": True, "f": 1.5, "i": 3, "l": ["a", 2], "n": None, "s": "x"}`, v.String())

	_, err = GoToStarlark(struct{}{})
	require.Error(t, err)
}
