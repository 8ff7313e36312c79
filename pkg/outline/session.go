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
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"opencue-outline/pkg/logging"

	"github.com/google/uuid"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	cp "github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	sessionFile = "session"
	outlineFile = "outline.yaml"
	layersDir   = "layers"
)

var (
	// ErrDataNotFound is returned by GetData for unknown keys.
	ErrDataNotFound = errors.New("no data stored under that name")
	// ErrDataExists is returned by PutData when the key is taken and force
	// is off.
	ErrDataExists = errors.New("data is already stored under that name")
)

// Session is the on-disk storage shared by the launcher and every frame of
// a job: the serialized outline plus per-layer files and data.
type Session struct {
	fs   afero.Fs
	name string
	path string
}

// NewSession creates a session directory for o under root. root may use the
// {HOME}, {SHOW} and {SHOT} placeholders.
func NewSession(fs afero.Fs, root string, o *Outline) (*Session, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate session id")
	}
	home, _ := os.UserHomeDir()
	root = strings.NewReplacer("{HOME}", home, "{SHOW}", o.show, "{SHOT}", o.shot).Replace(root)

	s := &Session{fs: fs, name: o.FullName() + "/" + id.String()}
	s.path = filepath.Join(root, s.name)
	logging.Info("creating session path: %s", s.path)
	if err := fs.MkdirAll(filepath.Join(s.path, layersDir), 0o777); err != nil {
		return nil, &SessionError{Op: "create", Path: s.path, Err: err}
	}
	return s, nil
}

// IsSessionPath reports whether p, a directory or a file inside one, holds
// a session.
func IsSessionPath(fs afero.Fs, p string) bool {
	if p == "" {
		return false
	}
	dir := p
	if isDir, err := afero.IsDir(fs, p); err != nil || !isDir {
		dir = filepath.Dir(p)
	}
	ok, err := afero.Exists(fs, filepath.Join(dir, sessionFile))
	return err == nil && ok
}

// OpenSession loads the session holding p, a directory or a file inside one.
func OpenSession(fs afero.Fs, p string) (*Session, error) {
	dir := p
	if isDir, err := afero.IsDir(fs, p); err != nil || !isDir {
		dir = filepath.Dir(p)
	}
	file := filepath.Join(dir, sessionFile)
	b, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, &SessionError{Op: "load", Path: file, Err: errors.Wrap(err, "invalid session")}
	}
	s := &Session{fs: fs, name: strings.TrimSpace(string(b)), path: dir}
	logging.Info("session loaded: %s", s.name)
	return s, nil
}

// Name returns <show>-<shot>-<user>_<outline>/<uuid>.
func (s *Session) Name() string { return s.name }

// Path returns the session directory.
func (s *Session) Path() string { return s.path }

// Fs returns the filesystem the session lives on.
func (s *Session) Fs() afero.Fs { return s.fs }

// Save writes the session marker file.
func (s *Session) Save() error {
	file := filepath.Join(s.path, sessionFile)
	if err := afero.WriteFile(s.fs, file, []byte(s.name), 0o666); err != nil {
		return &SessionError{Op: "save", Path: file, Err: err}
	}
	return nil
}

// LayerPath returns the directory of layer, creating it on demand. An empty
// layer names the session directory itself.
func (s *Session) LayerPath(layer string) (string, error) {
	if layer == "" {
		return s.path, nil
	}
	p := path.Join(s.path, layersDir, layer)
	if err := s.fs.MkdirAll(p, 0o777); err != nil {
		return "", &SessionError{Op: "mkdir", Path: p, Err: err}
	}
	return p, nil
}

// PutData stores value as YAML under name. It refuses to overwrite unless
// force is set.
func (s *Session) PutData(name string, value interface{}, layer string, force bool) error {
	dir, err := s.LayerPath(layer)
	if err != nil {
		return err
	}
	p := path.Join(dir, name)
	if exists, _ := afero.Exists(s.fs, p); exists && !force {
		return &SessionError{Op: "put data", Path: p, Err: ErrDataExists}
	}
	b, err := yaml.Marshal(value)
	if err != nil {
		return &SessionError{Op: "put data", Path: p, Err: errors.Wrap(err, "failed to encode data")}
	}
	if err := afero.WriteFile(s.fs, p, b, 0o666); err != nil {
		return &SessionError{Op: "put data", Path: p, Err: err}
	}
	return nil
}

// GetData decodes the YAML stored under name into out.
func (s *Session) GetData(name, layer string, out interface{}) error {
	dir, err := s.LayerPath(layer)
	if err != nil {
		return err
	}
	p := path.Join(dir, name)
	b, err := afero.ReadFile(s.fs, p)
	if os.IsNotExist(err) {
		return &SessionError{Op: "get data", Path: p, Err: ErrDataNotFound}
	}
	if err != nil {
		return &SessionError{Op: "get data", Path: p, Err: err}
	}
	logging.Debug("opening data path for %s : %s", name, p)
	if err := yaml.Unmarshal(b, out); err != nil {
		return &SessionError{Op: "get data", Path: p, Err: errors.Wrapf(err, "failed to load yaml data from %s", p)}
	}
	return nil
}

func (s *Session) destination(src, layer, rename string) (string, error) {
	dir, err := s.LayerPath(layer)
	if err != nil {
		return "", err
	}
	if rename == "" {
		rename = filepath.Base(src)
	}
	return path.Join(dir, rename), nil
}

// PutFile copies src into the session and returns the new path.
func (s *Session) PutFile(src, layer, rename string) (string, error) {
	dst, err := s.destination(src, layer, rename)
	if err != nil {
		return "", err
	}
	logging.Info("creating session file %s", dst)
	in, err := s.fs.Open(src)
	if err != nil {
		return "", &SessionError{Op: "put file", Path: src, Err: err}
	}
	defer in.Close()
	out, err := s.fs.Create(dst)
	if err != nil {
		return "", &SessionError{Op: "put file", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", &SessionError{Op: "put file", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", &SessionError{Op: "put file", Path: dst, Err: err}
	}
	return dst, nil
}

// SymFile links src into the session, replacing an existing link, and
// returns the link path. The filesystem must support symlinks.
func (s *Session) SymFile(src, layer, rename string) (string, error) {
	linker, ok := s.fs.(afero.Linker)
	if !ok {
		return "", &SessionError{Op: "link file", Path: src, Err: errors.New("filesystem does not support symlinks")}
	}
	dst, err := s.destination(src, layer, rename)
	if err != nil {
		return "", err
	}
	logging.Info("creating session link %s", dst)
	_ = s.fs.Remove(dst)
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", &SessionError{Op: "link file", Path: src, Err: err}
	}
	if err := linker.SymlinkIfPossible(abs, dst); err != nil {
		return "", &SessionError{Op: "link file", Path: dst, Err: err}
	}
	return dst, nil
}

// GetFile returns the session path of name. With check the file must exist;
// with isNew it must not, and check is implied off.
func (s *Session) GetFile(name, layer string, check, isNew bool) (string, error) {
	if isNew {
		check = false
	}
	dir, err := s.LayerPath(layer)
	if err != nil {
		return "", err
	}
	p := path.Join(dir, name)
	exists, _ := afero.Exists(s.fs, p)
	if check && !exists {
		return "", &SessionError{Op: "get file", Path: p, Err: os.ErrNotExist}
	}
	if isNew && exists {
		return "", &SessionError{Op: "get file", Path: p, Err: os.ErrExist}
	}
	return p, nil
}

// PutDir copies the directory src into the session, skipping anything
// matched by the patterns in src/<ignoreFile>. It only works on the OS
// filesystem.
func (s *Session) PutDir(src, layer, rename, ignoreFile string) (string, error) {
	if _, ok := s.fs.(*afero.OsFs); !ok {
		return "", &SessionError{Op: "put dir", Path: src, Err: errors.New("directories can only be copied on the OS filesystem")}
	}
	matcher, err := readIgnorePatterns(src, ignoreFile)
	if err != nil {
		return "", &SessionError{Op: "put dir", Path: src, Err: err}
	}
	dst, err := s.destination(src, layer, rename)
	if err != nil {
		return "", err
	}
	logging.Info("copying %s into session directory %s", src, dst)
	opts := cp.Options{
		Skip: func(_ os.FileInfo, p, _ string) (bool, error) {
			rel, err := filepath.Rel(src, p)
			if err != nil || rel == "." {
				return false, err
			}
			return matcher.MatchesOrParentMatches(filepath.ToSlash(rel))
		},
	}
	if err := cp.Copy(src, dst, opts); err != nil {
		return "", &SessionError{Op: "put dir", Path: dst, Err: err}
	}
	return dst, nil
}

func readIgnorePatterns(dir, ignoreFile string) (*patternmatcher.PatternMatcher, error) {
	var patterns []string
	if ignoreFile != "" {
		patterns = append(patterns, ignoreFile)
		f, err := os.Open(filepath.Join(dir, ignoreFile))
		switch {
		case err == nil:
			filePatterns, err := ignorefile.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read ignore file %s", ignoreFile)
			}
			patterns = append(patterns, filePatterns...)
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "failed to open ignore file %s", ignoreFile)
		}
	}
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pattern matcher")
	}
	return matcher, nil
}
