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
	"os"
	"os/user"

	"github.com/spf13/pflag"
)

// devOptions select the outline version and development areas frames run
// with.
type devOptions struct {
	dev     bool
	devUser string
	version string
	repos   string
}

// addDevFlags registers the development flags. The launcher also takes the
// one letter forms and reads the default version from $OL_VERSION.
func addDevFlags(f *pflag.FlagSet, d *devOptions, shorthands bool) {
	versionShort, reposShort, versionDefault := "", "", ""
	if shorthands {
		versionShort, reposShort, versionDefault = "v", "r", os.Getenv("OL_VERSION")
	}
	f.StringVarP(&d.version, "version", versionShort, versionDefault, "Outline version the frames run with. Defaults to latest.")
	f.StringVarP(&d.repos, "repos", reposShort, "", "Extra repositories for the frames.")
	f.BoolVar(&d.dev, "dev", false, "Add the current user's dev areas to the frames.")
	f.StringVar(&d.devUser, "dev-user", "", "Add the given user's dev areas to the frames.")
}

// env returns the executor environment for the options. --dev without
// --dev-user means the current user.
func (d devOptions) env() map[string]string {
	env := make(map[string]string)
	devUser := d.devUser
	if d.dev && devUser == "" {
		if u, err := user.Current(); err == nil {
			devUser = u.Username
		}
	}
	for k, v := range map[string]string{"OL_VERSION": d.version, "OL_REPOS": d.repos, "OL_DEV_USER": devUser} {
		if v != "" {
			env[k] = v
		}
	}
	return env
}
