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

package outline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func setupOutline(t *testing.T, fs afero.Fs, layers ...*Layer) *Outline {
	t.Helper()
	o := New("test", WithFrameRange("1-10"), WithFs(fs), WithShowShotUser("testing", "shot01", "tester"))
	for _, l := range layers {
		if err := o.AddLayer(l); err != nil {
			t.Fatalf("AddLayer(%s) error = %v", l.Name(), err)
		}
	}
	if err := o.Setup("/sessions/{SHOW}"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return o
}

func TestSessionSetup(t *testing.T) {
	fs := afero.NewMemMapFs()
	o := setupOutline(t, fs, NewLayer("cmd", LayerArgs{}))

	s := o.Session()
	if s == nil {
		t.Fatal("Session() = nil after Setup")
	}
	if !strings.HasPrefix(s.Name(), "testing-shot01-tester_test/") {
		t.Errorf("Name() = %q", s.Name())
	}
	if !strings.HasPrefix(s.Path(), "/sessions/testing/testing-shot01-tester_test/") {
		t.Errorf("Path() = %q", s.Path())
	}
	if o.Mode() != ModeReady {
		t.Errorf("Mode() = %s, want %s", o.Mode(), ModeReady)
	}
	if o.Path() != filepath.Join(s.Path(), "outline.yaml") {
		t.Errorf("Path() = %q", o.Path())
	}
	if ok, _ := afero.DirExists(fs, filepath.Join(s.Path(), "layers")); !ok {
		t.Error("layers directory missing")
	}
	if !IsSessionPath(fs, o.Path()) {
		t.Error("IsSessionPath(outline path) = false")
	}

	reopened, err := OpenSession(fs, o.Path())
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Name() != s.Name() || reopened.Path() != s.Path() {
		t.Errorf("OpenSession() = %s at %s, want %s at %s", reopened.Name(), reopened.Path(), s.Name(), s.Path())
	}

	if err := o.Setup("/sessions"); !errors.Is(err, ErrMode) {
		t.Errorf("second Setup() error = %v, want ErrMode", err)
	}
	if err := o.SetName("other"); !errors.Is(err, ErrMode) {
		t.Errorf("SetName() after setup error = %v, want ErrMode", err)
	}
}

func TestSessionData(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("cmd", LayerArgs{})
	setupOutline(t, fs, l)

	type blob struct {
		Frames []int
		Note   string
	}
	want := blob{Frames: []int{1, 2, 3}, Note: "hi"}
	if err := l.PutData("blob", want, false); err != nil {
		t.Fatal(err)
	}
	var got blob
	if err := l.GetData("blob", &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetData() mismatch (-want +got):\n%s", diff)
	}

	if err := l.PutData("blob", blob{}, false); !errors.Is(err, ErrDataExists) {
		t.Errorf("PutData() without force error = %v, want ErrDataExists", err)
	}
	if err := l.PutData("blob", blob{Note: "new"}, true); err != nil {
		t.Errorf("PutData() with force error = %v", err)
	}
	if err := l.GetData("missing", &got); !errors.Is(err, ErrDataNotFound) {
		t.Errorf("GetData(missing) error = %v, want ErrDataNotFound", err)
	}
	var sessionErr *SessionError
	if err := l.GetData("missing", &got); !errors.As(err, &sessionErr) || sessionErr.Op != "get data" {
		t.Errorf("GetData(missing) error = %v, want a *SessionError", err)
	}
}

func TestSessionFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := NewLayer("cmd", LayerArgs{})
	o := setupOutline(t, fs, l)

	if err := afero.WriteFile(fs, "/src/scene.nk", []byte("scene"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst, err := l.PutFile("/src/scene.nk", "")
	if err != nil {
		t.Fatal(err)
	}
	layerPath, _ := l.Path()
	if dst != filepath.Join(layerPath, "scene.nk") {
		t.Errorf("PutFile() = %q", dst)
	}
	if b, _ := afero.ReadFile(fs, dst); string(b) != "scene" {
		t.Errorf("copied file holds %q", b)
	}

	if got, err := l.GetFile("scene.nk", true, false); err != nil || got != dst {
		t.Errorf("GetFile(check) = %q, %v", got, err)
	}
	if _, err := l.GetFile("scene.nk", false, true); !errors.Is(err, os.ErrExist) {
		t.Errorf("GetFile(new) error = %v, want os.ErrExist", err)
	}
	if _, err := l.GetFile("other.nk", true, false); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("GetFile(missing) error = %v, want os.ErrNotExist", err)
	}

	jobFile, err := o.PutFile("/src/scene.nk", "job.nk")
	if err != nil {
		t.Fatal(err)
	}
	if jobFile != filepath.Join(o.Session().Path(), "job.nk") {
		t.Errorf("outline PutFile() = %q", jobFile)
	}

	if _, err := l.SymFile("/src/scene.nk", ""); err == nil {
		t.Error("SymFile() on a memory filesystem error = nil")
	}
}

func TestSessionPutDir(t *testing.T) {
	src := t.TempDir()
	for name, content := range map[string]string{
		"keep.txt":        "keep",
		"cache/big.bin":   "big",
		"sub/notes.tmp":   "tmp",
		"sub/scene.nk":    "scene",
		".olignore":       "cache\n*.tmp\n**/*.tmp\n",
		"sub/deep/a.tmp":  "tmp",
		"sub/deep/b.yaml": "b",
	} {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fs := afero.NewOsFs()
	o := New("putdir", WithFs(fs), WithShowShotUser("show", "shot", "user"))
	if err := o.AddLayer(NewLayer("cmd", LayerArgs{})); err != nil {
		t.Fatal(err)
	}
	if err := o.Setup(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	dst, err := o.Session().PutDir(src, "cmd", "support", ".olignore")
	if err != nil {
		t.Fatalf("PutDir() error = %v", err)
	}
	var got []string
	err = filepath.Walk(dst, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(dst, p)
		got = append(got, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"keep.txt", "sub/deep/b.yaml", "sub/scene.nk"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("copied files mismatch (-want +got):\n%s", diff)
	}

	mem := New("mem", WithFs(afero.NewMemMapFs()))
	if err := mem.AddLayer(NewLayer("cmd", LayerArgs{})); err != nil {
		t.Fatal(err)
	}
	if err := mem.Setup("/sessions"); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.Session().PutDir(src, "cmd", "", ""); err == nil {
		t.Error("PutDir() on a memory filesystem error = nil")
	}
}
