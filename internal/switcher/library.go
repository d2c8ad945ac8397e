package switcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/mod/semver"
)

// ErrUnknownLibrary is returned for a library other than react or next.
var ErrUnknownLibrary = errors.New("unknown library")

// Library is a switchable framework dependency.
type Library string

const (
	React Library = "react"
	Next  Library = "next"
)

// ParseLibrary accepts "react", "next" and "nextjs".
func ParseLibrary(s string) (Library, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "react":
		return React, nil
	case "next", "nextjs", "next.js":
		return Next, nil
	}
	return "", fmt.Errorf("%w: %q (want react or next)", ErrUnknownLibrary, s)
}

// Packages lists the npm packages that move together, primary first.
func (l Library) Packages() []string {
	if l == Next {
		return []string{"next"}
	}
	return []string{"react", "react-dom"}
}

func (l Library) String() string { return string(l) }

// InstalledVersion reads the version of pkg actually installed under dir.
func InstalledVersion(dir, pkg string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "node_modules", pkg, "package.json"))
	if err != nil {
		return "", err
	}
	v := gjson.GetBytes(data, "version")
	if !v.Exists() || v.String() == "" {
		return "", fmt.Errorf("no version in installed %s metadata", pkg)
	}
	return v.String(), nil
}

// DeclaredVersion reads dependencies.<pkg> from dir/package.json with any
// range operator removed.
func DeclaredVersion(dir, pkg string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", err
	}
	v := gjson.GetBytes(data, "dependencies."+gjsonEscape(pkg))
	if !v.Exists() {
		return "", fmt.Errorf("%s is not declared in %s", pkg, filepath.Join(dir, "package.json"))
	}
	return strings.TrimLeft(strings.TrimSpace(v.String()), "^~=v<>"), nil
}

// SameVersion compares versions semantically, so 19.0 equals 19.0.0.
// Strings that are not semantic versions are compared literally.
func SameVersion(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if ca == "" || cb == "" {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return semver.Compare(ca, cb) == 0
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// gjsonEscape escapes path metacharacters in a package name.
func gjsonEscape(s string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(s)
}
