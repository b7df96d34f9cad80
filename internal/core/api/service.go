// Package api provides the gRPC IntervalService implementation.
package api

import (
	"context"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/intervalq/internal/core/db"
	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/rules"
	"github.com/solatis/intervalq/internal/types"
)

// Mappings is the mapping store the service reads and writes.
// Implemented by *db.MappingStore.
type Mappings interface {
	Put(ctx context.Context, index string, raw []byte) (*db.IndexMapping, error)
	Get(ctx context.Context, index string) (*db.IndexMapping, error)
	Resolver(ctx context.Context, index string) (*mapping.Resolver, error)
}

// IntervalService implements IntervalServiceServer.
// Thin orchestration layer delegating to the mapping store and rules engine.
type IntervalService struct {
	mappings Mappings
	engine   *rules.Engine
	logger   *zap.Logger
}

// NewIntervalService creates service instance with dependencies.
func NewIntervalService(mappings Mappings, engine *rules.Engine, logger *zap.Logger) (*IntervalService, error) {
	if mappings == nil {
		return nil, fmt.Errorf("mappings cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalService{mappings: mappings, engine: engine, logger: logger}, nil
}

// Compile compiles an interval query against an index mapping.
//
// Request: index (string), query (JSON string). With field set, query is
// a bare rule compiled against that field; otherwise it is an
// {"intervals": {field: rule}} envelope or the inner {field: rule} object.
// Response: field, expression, cacheable, boost, name.
func (s *IntervalService) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, err := requiredString(req, "index")
	if err != nil {
		return nil, err
	}
	query, err := requiredString(req, "query")
	if err != nil {
		return nil, err
	}

	resolver, err := s.mappings.Resolver(ctx, index)
	if err != nil {
		return nil, toStatus(err, codes.Internal)
	}

	var compiled *rules.CompiledQuery
	if field := optionalString(req, "field"); field != "" {
		src, cacheable, err := s.engine.Compile(ctx, []byte(query), field, resolver)
		if err != nil {
			return nil, toStatus(err, codes.InvalidArgument)
		}
		compiled = &rules.CompiledQuery{Field: field, Source: src, Cacheable: cacheable, Boost: types.DefaultBoost}
	} else {
		compiled, err = s.engine.CompileQuery(ctx, []byte(query), resolver)
		if err != nil {
			return nil, toStatus(err, codes.InvalidArgument)
		}
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"field":      compiled.Field,
		"expression": compiled.Source.String(),
		"cacheable":  compiled.Cacheable,
		"boost":      compiled.Boost,
		"name":       compiled.Name,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// PutMapping stores the mapping of an index. The mapping may be an object
// or a JSON string.
func (s *IntervalService) PutMapping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, err := requiredString(req, "index")
	if err != nil {
		return nil, err
	}
	raw, err := mappingBytes(req)
	if err != nil {
		return nil, err
	}

	m, err := s.mappings.Put(ctx, index, raw)
	if err != nil {
		return nil, toStatus(err, codes.InvalidArgument)
	}
	s.logger.Info("mapping stored", zap.String("index", index), zap.String("index_id", string(m.ID)))

	return indexStruct(m, nil)
}

// GetMapping returns the stored mapping of an index with its etag.
func (s *IntervalService) GetMapping(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, err := requiredString(req, "index")
	if err != nil {
		return nil, err
	}

	m, err := s.mappings.Get(ctx, index)
	if err != nil {
		return nil, toStatus(err, codes.Internal)
	}

	body := &structpb.Struct{}
	if err := protojson.Unmarshal([]byte(m.Mapping), body); err != nil {
		return nil, status.Error(codes.DataLoss, fmt.Sprintf("stored mapping for [%s] is not a JSON object: %v", index, err))
	}
	return indexStruct(m, body)
}

// indexStruct renders stored mapping metadata, with the mapping body when
// body is non-nil.
func indexStruct(m *db.IndexMapping, body *structpb.Struct) (*structpb.Struct, error) {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		"index":      structpb.NewStringValue(m.Name),
		"id":         structpb.NewStringValue(string(m.ID)),
		"created_at": structpb.NewStringValue(m.CreatedAt),
		"updated_at": structpb.NewStringValue(m.UpdatedAt),
		"etag":       structpb.NewStringValue(computeETag(m.Mapping)),
	}}
	if body != nil {
		out.Fields["mapping"] = structpb.NewStructValue(body)
	}
	return out, nil
}

// computeETag is a content hash of the stored mapping, so clients can
// tell whether a mapping changed since they last fetched it.
func computeETag(mapping string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(mapping)))
}

func mappingBytes(req *structpb.Struct) ([]byte, error) {
	v, ok := req.GetFields()["mapping"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "mapping is required")
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return []byte(k.StringValue), nil
	case *structpb.Value_StructValue:
		raw, err := protojson.Marshal(k.StructValue)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid mapping: %v", err))
		}
		return raw, nil
	default:
		return nil, status.Error(codes.InvalidArgument, "mapping must be an object or a JSON string")
	}
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return "", status.Error(codes.InvalidArgument, key+" is required")
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", status.Error(codes.InvalidArgument, key+" must be a string")
	}
	if s.StringValue == "" {
		return "", status.Error(codes.InvalidArgument, key+" cannot be empty")
	}
	return s.StringValue, nil
}

func optionalString(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}
