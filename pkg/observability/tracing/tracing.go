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

// Package tracing provides distributed tracing services to tiercache
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name tiercache tracers are created under
const InstrumentationName = "github.com/trickstercache/tiercache"

// Tracer is a Tracer object used by tiercache
type Tracer struct {
	trace.Tracer
	Name string
	// Tags are attached to every span started through the span package
	Tags Tags
}

// New returns a Tracer from the provided TracerProvider. A nil provider uses
// the globally registered provider.
func New(tp trace.TracerProvider, name string, tags Tags) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{
		Tracer: tp.Tracer(InstrumentationName),
		Name:   name,
		Tags:   tags,
	}
}

// Tags represents a collection of Tags
type Tags map[string]string

// Merge merges t2, when not nil, into t
func (t Tags) Merge(t2 Tags) {
	if t2 == nil {
		return
	}
	for k, v := range t2 {
		t[k] = v
	}
}

// ToAttr returns the Tags map as an Attributes List
func (t Tags) ToAttr() []attribute.KeyValue {
	attr := make([]attribute.KeyValue, len(t))
	i := 0
	for k, v := range t {
		attr[i] = attribute.String(k, v)
		i++
	}
	return attr
}
