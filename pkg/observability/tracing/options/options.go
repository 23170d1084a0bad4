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

// Package options defines the tracing configuration of a cache
package options

import "maps"

const (
	// DefaultTracerProvider is the default tracing provider
	DefaultTracerProvider = "none"
	// DefaultTracerServiceName is the default service.name resource attribute
	DefaultTracerServiceName = "tiercache"
	// DefaultSampleRate is the default fraction of traces sampled
	DefaultSampleRate = 1.0
)

// Options is a Tracing Options collection
type Options struct {
	// Provider is one of none or stdout
	Provider    string            `yaml:"provider,omitempty"`
	ServiceName string            `yaml:"service_name,omitempty"`
	SampleRate  float64           `yaml:"sample_rate,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`

	StdOutOptions *StdOutOptions `yaml:"stdout,omitempty"`
}

// StdOutOptions is a collection of Stdout-specific options
type StdOutOptions struct {
	PrettyPrint bool `yaml:"pretty_print,omitempty"`
}

// New returns a new *Options with the default values
func New() *Options {
	return &Options{
		Provider:      DefaultTracerProvider,
		ServiceName:   DefaultTracerServiceName,
		SampleRate:    DefaultSampleRate,
		StdOutOptions: &StdOutOptions{},
	}
}

// Clone returns an exact copy of a tracing config
func (o *Options) Clone() *Options {
	o2 := *o
	o2.Tags = maps.Clone(o.Tags)
	if o.StdOutOptions != nil {
		so := *o.StdOutOptions
		o2.StdOutOptions = &so
	}
	return &o2
}
