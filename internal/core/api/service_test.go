package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/intervalq/internal/core/db"
	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/rules"
	"github.com/solatis/intervalq/internal/script"
)

const docsMapping = `{"properties": {
	"body": {"type": "text", "analyzer": "simple"},
	"tag": {"type": "keyword"}
}}`

func newTestService(t *testing.T, scripts rules.ScriptCompiler) *IntervalService {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(database))
	queries, err := db.LoadQueries(database)
	require.NoError(t, err)

	store := db.NewMappingStore(queries, mapping.StandardAnalyzer)
	_, err = store.Put(context.Background(), "docs", []byte(docsMapping))
	require.NoError(t, err)

	svc, err := NewIntervalService(store, rules.NewEngine(scripts, nil), nil)
	require.NoError(t, err)
	return svc
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestNewIntervalService_NilDeps(t *testing.T) {
	_, err := NewIntervalService(nil, rules.NewEngine(nil, nil), nil)
	assert.Error(t, err)
}

func TestCompile(t *testing.T) {
	svc := newTestService(t, script.NewEngine(1000, nil))

	resp, err := svc.Compile(context.Background(), mustStruct(t, map[string]interface{}{
		"index": "docs",
		"query": `{"intervals": {"body": {"match": {"query": "Quick Fox", "ordered": true}, "_name": "q1", "boost": 2}}}`,
	}))
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "body", fields["field"].GetStringValue())
	assert.Equal(t, "ordered(quick,fox)", fields["expression"].GetStringValue())
	assert.True(t, fields["cacheable"].GetBoolValue())
	assert.Equal(t, 2.0, fields["boost"].GetNumberValue())
	assert.Equal(t, "q1", fields["name"].GetStringValue())
}

func TestCompile_BareRule(t *testing.T) {
	svc := newTestService(t, script.NewEngine(1000, nil))

	resp, err := svc.Compile(context.Background(), mustStruct(t, map[string]interface{}{
		"index": "docs",
		"field": "body",
		"query": `{"match": {"query": "fox", "filter": {"script": {"source": "interval.gaps == 0"}}}}`,
	}))
	require.NoError(t, err)
	assert.Equal(t, `script(fox,"interval.gaps == 0")`, resp.GetFields()["expression"].GetStringValue())
	assert.False(t, resp.GetFields()["cacheable"].GetBoolValue())
	assert.Equal(t, 1.0, resp.GetFields()["boost"].GetNumberValue())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		scripts rules.ScriptCompiler
		req     map[string]interface{}
		want    codes.Code
	}{
		{"missing index", script.NewEngine(0, nil), map[string]interface{}{"query": "{}"}, codes.InvalidArgument},
		{"query not a string", script.NewEngine(0, nil), map[string]interface{}{"index": "docs", "query": 3.0}, codes.InvalidArgument},
		{"unknown index", script.NewEngine(0, nil), map[string]interface{}{"index": "nope", "query": `{"body": {"match": {"query": "a"}}}`}, codes.NotFound},
		{"malformed rule", script.NewEngine(0, nil), map[string]interface{}{"index": "docs", "query": `{"body": {"match": {"query": "a"}, "prefix": {"prefix": "b"}}}`}, codes.InvalidArgument},
		{"keyword field", script.NewEngine(0, nil), map[string]interface{}{"index": "docs", "query": `{"tag": {"match": {"query": "a"}}}`}, codes.InvalidArgument},
		{"scripts disabled", nil, map[string]interface{}{"index": "docs", "field": "body", "query": `{"match": {"query": "a", "filter": {"script": {"source": "True"}}}}`}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.scripts)
			_, err := svc.Compile(context.Background(), mustStruct(t, tt.req))
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err), "error: %v", err)
		})
	}
}

func TestCompile_UnknownFieldRelaxed(t *testing.T) {
	svc := newTestService(t, nil)

	resp, err := svc.Compile(context.Background(), mustStruct(t, map[string]interface{}{
		"index": "docs",
		"query": `{"missing": {"match": {"query": "a"}}}`,
	}))
	require.NoError(t, err)
	assert.Contains(t, resp.GetFields()["expression"].GetStringValue(), "no_intervals(")
	assert.True(t, resp.GetFields()["cacheable"].GetBoolValue())
}

func TestPutGetMapping(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	put, err := svc.PutMapping(ctx, mustStruct(t, map[string]interface{}{
		"index": "articles",
		"mapping": map[string]interface{}{
			"properties": map[string]interface{}{
				"title": map[string]interface{}{"type": "text"},
			},
		},
	}))
	require.NoError(t, err)
	id := put.GetFields()["id"].GetStringValue()
	assert.NotEmpty(t, id)

	got, err := svc.GetMapping(ctx, mustStruct(t, map[string]interface{}{"index": "articles"}))
	require.NoError(t, err)
	assert.Equal(t, id, got.GetFields()["id"].GetStringValue())
	assert.Equal(t, put.GetFields()["etag"].GetStringValue(), got.GetFields()["etag"].GetStringValue())
	props := got.GetFields()["mapping"].GetStructValue().GetFields()["properties"].GetStructValue()
	assert.Contains(t, props.GetFields(), "title")

	// string form replaces the mapping and changes the etag
	again, err := svc.PutMapping(ctx, mustStruct(t, map[string]interface{}{
		"index":   "articles",
		"mapping": `{"properties": {"body": {"type": "text"}}}`,
	}))
	require.NoError(t, err)
	assert.Equal(t, id, again.GetFields()["id"].GetStringValue())
	assert.NotEqual(t, put.GetFields()["etag"].GetStringValue(), again.GetFields()["etag"].GetStringValue())

	resp, err := svc.Compile(ctx, mustStruct(t, map[string]interface{}{
		"index": "articles",
		"query": `{"body": {"match": {"query": "quick brown"}}}`,
	}))
	require.NoError(t, err)
	assert.Equal(t, "unordered(quick,brown)", resp.GetFields()["expression"].GetStringValue())
}

func TestPutMapping_Errors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  map[string]interface{}
	}{
		{"missing mapping", map[string]interface{}{"index": "x"}},
		{"mapping number", map[string]interface{}{"index": "x", "mapping": 1.0}},
		{"bad json", map[string]interface{}{"index": "x", "mapping": `{"properties":`}},
		{"bad analyzer", map[string]interface{}{"index": "x", "mapping": `{"properties": {"a": {"type": "text", "analyzer": "klingon"}}}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PutMapping(ctx, mustStruct(t, tt.req))
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "error: %v", err)
		})
	}

	_, err := svc.GetMapping(ctx, mustStruct(t, map[string]interface{}{"index": "x"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, codes.DeadlineExceeded, codeFor(context.DeadlineExceeded, codes.Internal))
	assert.Equal(t, codes.Canceled, codeFor(context.Canceled, codes.Internal))
	assert.Equal(t, codes.Internal, codeFor(assert.AnError, codes.Internal))

	st := status.Error(codes.Aborted, "x")
	assert.Equal(t, st, toStatus(st, codes.Internal))
}
