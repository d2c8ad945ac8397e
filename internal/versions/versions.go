// Package versions holds the catalogue of framework versions under test and
// a client for the app's version-info endpoint.
package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Status is the vulnerability classification of a version.
type Status string

const (
	Vulnerable Status = "VULNERABLE"
	Fixed      Status = "FIXED"
	Unknown    Status = "UNKNOWN"
)

// ErrInvalidStatus is returned when the endpoint reports a status other than VULNERABLE or FIXED.
var ErrInvalidStatus = errors.New("invalid version status")

var (
	ReactVulnerable = []string{"19.0", "19.1.0", "19.1.1", "19.2.0"}
	ReactFixed      = []string{"19.0.1", "19.1.2", "19.2.1"}

	NextJSVulnerable = []string{
		"14.0.0", "14.1.0", "15.0.4", "15.1.8", "15.2.5",
		"15.3.5", "15.4.7", "15.5.6", "16.0.6",
	}
	NextJSFixed = []string{"14.0.1", "14.1.1"}
)

// React lists every React version in the catalogue, vulnerable first.
func React() []string { return append(append([]string(nil), ReactVulnerable...), ReactFixed...) }

// NextJS lists every Next.js version in the catalogue, vulnerable first.
func NextJS() []string { return append(append([]string(nil), NextJSVulnerable...), NextJSFixed...) }

// ReactStatus classifies a React version.
func ReactStatus(version string) Status {
	return classify(version, ReactVulnerable, ReactFixed)
}

// NextJSStatus classifies a Next.js version.
func NextJSStatus(version string) Status {
	return classify(version, NextJSVulnerable, NextJSFixed)
}

func classify(version string, vulnerable, fixed []string) Status {
	match := func(v string) bool { return equal(v, version) }
	switch {
	case slices.ContainsFunc(vulnerable, match):
		return Vulnerable
	case slices.ContainsFunc(fixed, match):
		return Fixed
	default:
		return Unknown
	}
}

// equal compares versions semantically after dropping range operators.
func equal(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	if ca == "" || cb == "" {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return semver.Compare(ca, cb) == 0
}

func canonical(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "^~=<>v")
	if v == "" {
		return ""
	}
	return semver.Canonical("v" + v)
}

// Info is the payload of GET /api/version.
type Info struct {
	React      string `json:"react,omitempty"`
	ReactDOM   string `json:"reactDom,omitempty"`
	NextJS     string `json:"nextjs,omitempty"`
	Node       string `json:"node,omitempty"`
	Vulnerable bool   `json:"vulnerable"`
	Status     Status `json:"status,omitempty"`
}

// Validate rejects a status outside VULNERABLE and FIXED. A missing status is allowed.
func (i Info) Validate() error {
	switch i.Status {
	case "", Vulnerable, Fixed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, i.Status)
}

// Expected is the catalogue status for the reported versions. Both apps
// derive their status from React, so the Next.js version only decides when
// no React version is reported.
func (i Info) Expected() Status {
	if i.React != "" && i.React != "unknown" {
		return ReactStatus(i.React)
	}
	if i.NextJS != "" && i.NextJS != "unknown" {
		return NextJSStatus(i.NextJS)
	}
	return Unknown
}

// Consistent reports whether the reported status and vulnerable flag agree
// with the catalogue. Versions missing from the catalogue are not judged.
func (i Info) Consistent() bool {
	expected := i.Expected()
	if expected == Unknown {
		return true
	}
	if i.Status != "" && i.Status != expected {
		return false
	}
	return i.Vulnerable == (expected == Vulnerable)
}

// Fetch queries the version-info endpoint at url.
func Fetch(ctx context.Context, url string, timeout time.Duration) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("failed to fetch version info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Info{}, fmt.Errorf("failed to read version info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("version endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, fmt.Errorf("failed to decode version info: %w", err)
	}
	if err := info.Validate(); err != nil {
		return info, err
	}
	return info, nil
}
