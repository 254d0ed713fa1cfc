package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedStore wraps a DocumentStore and records one span per call.
type TracedStore struct {
	next   DocumentStore
	tracer trace.Tracer
}

func NewTracedStore(next DocumentStore, tracer trace.Tracer) *TracedStore {
	if tracer == nil {
		tracer = otel.Tracer("backoffice-service/store")
	}
	return &TracedStore{next: next, tracer: tracer}
}

func (s *TracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *TracedStore) Get(ctx context.Context, path string) (*Document, error) {
	ctx, span := s.start(ctx, "Get", attribute.String("document.path", path))
	doc, err := s.next.Get(ctx, path)
	finish(span, err)
	return doc, err
}

func (s *TracedStore) GetAll(ctx context.Context, paths []string) ([]*Document, error) {
	ctx, span := s.start(ctx, "GetAll", attribute.Int("document.count", len(paths)))
	docs, err := s.next.GetAll(ctx, paths)
	finish(span, err)
	return docs, err
}

func (s *TracedStore) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	ctx, span := s.start(ctx, "SetMerge", attribute.String("document.path", path))
	err := s.next.SetMerge(ctx, path, fields)
	finish(span, err)
	return err
}

func (s *TracedStore) Commit(ctx context.Context, writes []Write) error {
	paths := make([]string, len(writes))
	for i, w := range writes {
		paths[i] = w.Path
	}
	ctx, span := s.start(ctx, "Commit", attribute.StringSlice("document.paths", paths))
	err := s.next.Commit(ctx, writes)
	finish(span, err)
	return err
}

func (s *TracedStore) List(ctx context.Context, collection string, opts ListOptions) ([]*Document, error) {
	ctx, span := s.start(ctx, "List",
		attribute.String("collection.path", collection),
		attribute.String("query.order_by", opts.OrderBy),
		attribute.Int("query.limit", opts.Limit),
	)
	docs, err := s.next.List(ctx, collection, opts)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(docs)))
	}
	finish(span, err)
	return docs, err
}

func (s *TracedStore) Close() error {
	return s.next.Close()
}
