// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func TestDevFlags(t *testing.T) {
	var d devOptions
	f := pflag.NewFlagSet("exec", pflag.ContinueOnError)
	addDevFlags(f, &d, false)
	if err := f.Parse([]string{"--version", "1.2", "--repos", "extra", "--dev-user", "bob"}); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"OL_VERSION": "1.2", "OL_REPOS": "extra", "OL_DEV_USER": "bob"}
	if diff := cmp.Diff(want, d.env()); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
	if f.ShorthandLookup("v") != nil {
		t.Error("exec must not register the -v shorthand")
	}
}

func TestDevFlagsEmpty(t *testing.T) {
	if env := (devOptions{}).env(); len(env) != 0 {
		t.Errorf("env() = %v, want empty", env)
	}
}
