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

package options

import (
	"testing"
)

func TestNew(t *testing.T) {
	o := New()
	if o.Provider != "none" || o.SampleRate != 1 || o.StdOutOptions == nil {
		t.Errorf("unexpected defaults %+v", o)
	}
}

func TestClone(t *testing.T) {
	o := New()
	o.Tags = map[string]string{"env": "test"}
	o.StdOutOptions.PrettyPrint = true
	o2 := o.Clone()
	o2.Tags["env"] = "prod"
	o2.StdOutOptions.PrettyPrint = false
	if o.Tags["env"] != "test" {
		t.Error("clone shares tags")
	}
	if !o.StdOutOptions.PrettyPrint {
		t.Error("clone shares stdout options")
	}
}
