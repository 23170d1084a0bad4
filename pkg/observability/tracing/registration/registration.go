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

// Package registration builds the configured TracerProvider for a cache
package registration

import (
	"fmt"

	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	terr "github.com/trickstercache/tiercache/pkg/observability/tracing/errors"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/exporters/stdout"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/options"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/providers"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Validate returns an error if the tracing options are unusable
func Validate(opts *options.Options) error {
	if opts == nil {
		return nil
	}
	if _, ok := providers.Names[opts.Provider]; !ok && opts.Provider != "" {
		return fmt.Errorf("%w: %s", terr.ErrInvalidProvider, opts.Provider)
	}
	if opts.SampleRate < 0 || opts.SampleRate > 1 {
		return terr.ErrInvalidSampleRate
	}
	return nil
}

// NewTracerProvider returns a TracerProvider based on the provided options.
// A nil or none provider returns a no-op TracerProvider.
func NewTracerProvider(opts *options.Options) (trace.TracerProvider, error) {
	if opts == nil {
		return noop.NewTracerProvider(), nil
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	switch opts.Provider {
	case providers.Stdout.String():
		logger.Info("tracer registration",
			logging.Pairs{
				"provider":    opts.Provider,
				"serviceName": opts.ServiceName,
				"sampleRate":  opts.SampleRate,
			},
		)
		return stdout.New(opts, nil)
	}
	return noop.NewTracerProvider(), nil
}
