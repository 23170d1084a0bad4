/*
 * Copyright 2018 The Trickster Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package span provides helpers for starting and finishing tiercache spans
package span

import (
	"context"

	"github.com/trickstercache/tiercache/pkg/observability/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewChildSpan returns the context with a new Span situated as the child of
// the previous span. When tr is nil, the context is returned with a nil span.
func NewChildSpan(ctx context.Context, tr *tracing.Tracer,
	spanName string, kvs ...attribute.KeyValue) (context.Context, trace.Span) {

	if ctx == nil {
		ctx = context.Background()
	}

	if tr == nil || tr.Tracer == nil {
		return ctx, nil
	}

	ctx, span := tr.Start(ctx, spanName, trace.WithAttributes(kvs...))
	if span != nil && len(tr.Tags) > 0 {
		span.SetAttributes(tr.Tags.ToAttr()...)
	}
	return ctx, span
}

// SetAttributes safely sets attributes on a span
func SetAttributes(span trace.Span, kvs ...attribute.KeyValue) {
	if span == nil || len(kvs) == 0 {
		return
	}
	span.SetAttributes(kvs...)
}

// End records err, when not nil, on the span and ends it
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
