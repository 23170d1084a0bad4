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

// Package key defines the canonical cache key
package key

import (
	"errors"
	"strings"
)

// Separator joins the parts of a canonical key
const Separator = ":"

// ReservedPrefix marks namespaces used internally, like tag index sets
const ReservedPrefix = "__"

var (
	ErrEmptyNamespace    = errors.New("cache key namespace is empty")
	ErrEmptyIdentifier   = errors.New("cache key identifier is empty")
	ErrInvalidNamespace  = errors.New("cache key namespace must not contain " + Separator)
	ErrReservedNamespace = errors.New("cache key namespace must not begin with " + ReservedPrefix)
)

// Key is a (namespace, identifier, optional version) tuple. It is a value
// type; the With* methods return modified copies.
type Key struct {
	Namespace  string
	Identifier string
	Version    string
}

// New returns a Key for the namespace and identifier
func New(namespace, identifier string) Key {
	return Key{Namespace: namespace, Identifier: identifier}
}

// WithVersion returns a copy of the Key with the provided version
func (k Key) WithVersion(version string) Key {
	k.Version = version
	return k
}

// String returns the canonical, colon-joined form of the Key
func (k Key) String() string {
	if k.Version == "" {
		return k.Namespace + Separator + k.Identifier
	}
	return k.Namespace + Separator + k.Identifier + Separator + k.Version
}

// NamespacePrefix returns the canonical prefix shared by all keys in the namespace
func NamespacePrefix(namespace string) string {
	return namespace + Separator
}

// Validate returns an error if the Key cannot be used
func (k Key) Validate() error {
	switch {
	case k.Namespace == "":
		return ErrEmptyNamespace
	case k.Identifier == "":
		return ErrEmptyIdentifier
	case strings.Contains(k.Namespace, Separator):
		return ErrInvalidNamespace
	case strings.HasPrefix(k.Namespace, ReservedPrefix):
		return ErrReservedNamespace
	}
	return nil
}
