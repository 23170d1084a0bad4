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

// Package logging provides the structured, leveled logger used throughout
// tiercache. Events are written in logfmt via go-kit/log.
package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/trickstercache/tiercache/pkg/observability/logging/level"
	"github.com/trickstercache/tiercache/pkg/observability/logging/options"

	gkl "github.com/go-kit/log"
	gklevel "github.com/go-kit/log/level"
	"github.com/go-stack/stack"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var _ Logger = &logger{}

type Logger interface {
	SetLogLevel(level.Level)
	Level() level.Level
	Close()
	//
	Log(logLevel level.Level, event string, detail Pairs)
	Debug(event string, detail Pairs)
	Info(event string, detail Pairs)
	Warn(event string, detail Pairs)
	Error(event string, detail Pairs)
	//
	LogOnce(logLevel level.Level, key, event string, detail Pairs) bool
	DebugOnce(key, event string, detail Pairs) bool
	InfoOnce(key, event string, detail Pairs) bool
	WarnOnce(key, event string, detail Pairs) bool
	ErrorOnce(key, event string, detail Pairs) bool
	//
	HasLoggedOnce(logLevel level.Level, key string) bool
	HasWarnedOnce(key string) bool
	HasErroredOnce(key string) bool
}

// Pairs represents a key=value pair that helps to describe a log event
type Pairs map[string]any

// AppName is written as the app field of every event
const AppName = "tiercache"

// New returns a Logger for the provided logging options. An empty LogFile
// logs to stdout; otherwise the file is rotated by lumberjack.
func New(o *options.Options) Logger {
	if o == nil {
		o = options.New()
	}
	var wr io.Writer
	if o.LogFile == "" {
		wr = os.Stdout
	} else {
		wr = &lumberjack.Logger{
			Filename:   o.LogFile,
			MaxSize:    256, // megabytes
			MaxBackups: 80,
			MaxAge:     7, // days
			Compress:   true,
		}
	}
	return newLogger(wr, level.Level(o.LogLevel))
}

// StreamLogger returns a Logger that writes to the provided writer
func StreamLogger(w io.Writer, logLevel level.Level) Logger {
	return newLogger(w, logLevel)
}

// ConsoleLogger returns a Logger that writes to stdout
func ConsoleLogger(logLevel level.Level) Logger {
	return newLogger(os.Stdout, logLevel)
}

// NoopLogger returns a Logger that discards all events
func NoopLogger() Logger {
	return newLogger(io.Discard, level.Error)
}

func newLogger(wr io.Writer, logLevel level.Level) *logger {
	base := gkl.NewLogfmtLogger(gkl.NewSyncWriter(wr))
	base = gkl.With(base,
		"time", gkl.DefaultTimestampUTC,
		"app", AppName,
	)
	l := &logger{base: base}
	if c, ok := wr.(io.Closer); ok && wr != os.Stdout && wr != os.Stderr {
		l.closer = c
	}
	l.SetLogLevel(logLevel)
	return l
}

type logger struct {
	base           gkl.Logger
	filtered       gkl.Logger
	level          level.Level
	levelID        level.ID
	closer         io.Closer
	mtx            sync.RWMutex
	onceRanEntries sync.Map
}

func (l *logger) SetLogLevel(logLevel level.Level) {
	logLevel = level.Level(strings.ToLower(string(logLevel)))
	id := level.GetID(logLevel)
	var unknown bool
	if id == 0 {
		unknown = true
		logLevel = level.Info
		id = level.InfoID
	}
	var opt gklevel.Option
	switch id {
	case level.DebugID:
		opt = gklevel.AllowDebug()
	case level.WarnID:
		opt = gklevel.AllowWarn()
	case level.ErrorID:
		opt = gklevel.AllowError()
	default:
		opt = gklevel.AllowInfo()
	}
	l.mtx.Lock()
	l.level = logLevel
	l.levelID = id
	l.filtered = gklevel.NewFilter(l.base, opt)
	l.mtx.Unlock()
	if unknown {
		l.WarnOnce("loglevel.unknown", "unknown log level; using INFO", nil)
	}
}

func (l *logger) Level() level.Level {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.level
}

func (l *logger) enabled(id level.ID) bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return id != 0 && id >= l.levelID
}

func (l *logger) Log(logLevel level.Level, event string, detail Pairs) {
	l.log(level.Level(strings.ToLower(string(logLevel))), event, detail)
}

func (l *logger) Debug(event string, detail Pairs) {
	l.log(level.Debug, event, detail)
}

func (l *logger) Info(event string, detail Pairs) {
	l.log(level.Info, event, detail)
}

func (l *logger) Warn(event string, detail Pairs) {
	l.log(level.Warn, event, detail)
}

func (l *logger) Error(event string, detail Pairs) {
	l.log(level.Error, event, detail)
}

func (l *logger) LogOnce(logLevel level.Level, key, event string, detail Pairs) bool {
	if !l.enabled(level.GetID(logLevel)) {
		return false
	}
	_, loaded := l.onceRanEntries.LoadOrStore(onceKey(logLevel, key), true)
	if loaded {
		return false
	}
	l.log(level.Level(strings.ToLower(string(logLevel))), event, detail)
	return true
}

func (l *logger) DebugOnce(key, event string, detail Pairs) bool {
	return l.LogOnce(level.Debug, key, event, detail)
}

func (l *logger) InfoOnce(key, event string, detail Pairs) bool {
	return l.LogOnce(level.Info, key, event, detail)
}

func (l *logger) WarnOnce(key, event string, detail Pairs) bool {
	return l.LogOnce(level.Warn, key, event, detail)
}

func (l *logger) ErrorOnce(key, event string, detail Pairs) bool {
	return l.LogOnce(level.Error, key, event, detail)
}

func (l *logger) HasLoggedOnce(logLevel level.Level, key string) bool {
	_, ok := l.onceRanEntries.Load(onceKey(logLevel, key))
	return ok
}

func (l *logger) HasWarnedOnce(key string) bool {
	return l.HasLoggedOnce(level.Warn, key)
}

func (l *logger) HasErroredOnce(key string) bool {
	return l.HasLoggedOnce(level.Error, key)
}

func onceKey(logLevel level.Level, key string) string {
	return strings.ToLower(string(logLevel)) + "." + key
}

func (l *logger) Close() {
	if l.closer != nil {
		l.closer.Close()
	}
}

func (l *logger) log(logLevel level.Level, event string, detail Pairs) {
	l.mtx.RLock()
	kl := l.filtered
	l.mtx.RUnlock()
	var lk gkl.Logger
	switch logLevel {
	case level.Debug:
		lk = gklevel.Debug(kl)
	case level.Info:
		lk = gklevel.Info(kl)
	case level.Warn:
		lk = gklevel.Warn(kl)
	case level.Error:
		lk = gklevel.Error(kl)
	default:
		return
	}
	lk.Log(keyvals(event, detail)...)
}

// keyvals flattens the event and its detail into go-kit's keyval form, with
// the event first, the detail sorted by key, and the caller last
func keyvals(event string, detail Pairs) []any {
	kv := make([]any, 0, (len(detail)*2)+4)
	kv = append(kv, "event", strings.TrimSpace(event))
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		kv = append(kv, k, detail[k])
	}
	if c := caller(); c != "" {
		kv = append(kv, "caller", c)
	}
	return kv
}

const modulePath = "github.com/trickstercache/tiercache/"

// caller returns the first frame in the call stack outside of the logging
// packages, relative to the module root
func caller() string {
	for _, c := range stack.Trace().TrimRuntime() {
		s := fmt.Sprintf("%+v", c)
		if strings.Contains(s, "pkg/observability/logging") &&
			!strings.Contains(s, "_test.go:") {
			continue
		}
		return strings.TrimPrefix(s, modulePath)
	}
	return ""
}
