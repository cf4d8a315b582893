// Package pkgjson locates and parses the caller's package.json, or builds
// the same descriptor from a package URL.
package pkgjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
	"github.com/spf13/afero"

	"github.com/git-pkgs/updatecheck/internal/core"
)

// FileName is the descriptor file searched for by Find.
const FileName = "package.json"

func descriptorError(path, msg string, err error) error {
	return &core.DescriptorError{Path: path, Message: msg, Err: err}
}

// Find walks from cwd up to the filesystem root and returns the first
// package.json found. An empty cwd starts at the working directory.
func Find(fsys afero.Fs, cwd string) (string, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return "", descriptorError(cwd, "Unable to resolve working directory", err)
	}

	for {
		file := filepath.Join(dir, FileName)
		if fi, err := fsys.Stat(file); err == nil && !fi.IsDir() {
			return file, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", descriptorError(cwd, "Unable to find a package.json", nil)
		}
		dir = parent
	}
}

// Load reads and validates the package.json at path.
func Load(fsys afero.Fs, path string) (*core.Package, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	fi, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, descriptorError(path, "File not found: "+path, nil)
		}
		return nil, descriptorError(path, fmt.Sprintf("Failed to read file: %s", path), err)
	}
	if fi.IsDir() {
		return nil, descriptorError(path, fmt.Sprintf("Failed to read file: %s (is a directory)", path), nil)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, descriptorError(path, fmt.Sprintf("Failed to read file: %s", path), err)
	}

	return Parse(path, data)
}

// Parse decodes package.json content. path is used for error messages only.
func Parse(path string, data []byte) (*core.Package, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, descriptorError(path, "Failed to parse package.json", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, descriptorError(path, "Expected pkg to be a parsed package.json object", nil)
	}

	name, _ := obj["name"].(string)
	version, _ := obj["version"].(string)
	pkg := &core.Package{Name: name, Version: version}
	if err := Validate(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Validate checks that the descriptor names a package and a semantic version.
func Validate(pkg *core.Package) error {
	if pkg == nil {
		return descriptorError("", "Expected pkg to be a parsed package.json object", nil)
	}
	if strings.TrimSpace(pkg.Name) == "" {
		return descriptorError("", "Expected name in package.json to be a non-empty string", nil)
	}
	if strings.TrimSpace(pkg.Version) == "" {
		return descriptorError("", "Expected version in package.json to be a non-empty string", nil)
	}
	if !core.ValidVersion(pkg.Version) {
		return descriptorError("", fmt.Sprintf("Expected version in package.json to be a valid semantic version, got %q", pkg.Version), nil)
	}
	return nil
}

// FromPURL builds a descriptor from an npm package URL such as
// "pkg:npm/%40scope/name@1.2.3".
func FromPURL(s string) (*core.Package, error) {
	p, err := packageurl.FromString(s)
	if err != nil {
		return nil, descriptorError(s, "Invalid package URL", err)
	}
	if p.Type != "npm" {
		return nil, descriptorError(s, fmt.Sprintf("Expected an npm package URL, got type %q", p.Type), nil)
	}

	name := p.Name
	if p.Namespace != "" {
		ns := p.Namespace
		if !strings.HasPrefix(ns, "@") {
			ns = "@" + ns
		}
		name = ns + "/" + p.Name
	}

	pkg := &core.Package{Name: name, Version: p.Version}
	if err := Validate(pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// IsPURL reports whether s looks like a package URL rather than a path.
func IsPURL(s string) bool {
	return strings.HasPrefix(s, "pkg:")
}

// Resolve returns the descriptor named by ref: a package URL, a path to a
// package.json, or (when ref is empty) the nearest package.json above cwd.
func Resolve(fsys afero.Fs, ref, cwd string) (*core.Package, error) {
	switch {
	case IsPURL(ref):
		return FromPURL(ref)
	case ref != "":
		return Load(fsys, ref)
	}
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, descriptorError("", "Unable to resolve working directory", err)
		}
		cwd = wd
	}
	path, err := Find(fsys, cwd)
	if err != nil {
		return nil, err
	}
	return Load(fsys, path)
}
