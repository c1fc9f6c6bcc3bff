package debutils

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/open-edge-platform/container-image-composer/internal/ospackage"
)

// ParsePackagesIndex reads an uncompressed Debian Packages index and returns
// one PackageInfo per stanza. Filename fields are resolved against baseURL.
func ParsePackagesIndex(r io.Reader, baseURL string) ([]ospackage.PackageInfo, error) {
	var packages []ospackage.PackageInfo
	current := ospackage.PackageInfo{}
	inStanza := false

	flush := func() {
		if inStanza && current.Name != "" {
			packages = append(packages, current)
		}
		current = ospackage.PackageInfo{}
		inStanza = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		// Continuation lines belong to multi-line fields we do not index
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		inStanza = true

		switch key {
		case "Package":
			current.Name = value
			current.Provides = append(current.Provides, value)
		case "Version":
			current.Version = value
		case "Architecture":
			current.Arch = value
		case "Filename":
			current.URL = strings.TrimSuffix(baseURL, "/") + "/" + value
		case "SHA256":
			current.Checksum = value
		case "Depends", "Pre-Depends":
			current.Requires = append(current.Requires, parseDependsField(value)...)
		case "Provides":
			current.Provides = append(current.Provides, parseProvidesField(value)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading Packages index: %w", err)
	}
	flush()

	return packages, nil
}

// parseDependsField splits a Depends/Pre-Depends value into capability
// names. Version constraints are dropped; for alternative groups the first
// alternative is kept, matching what a default apt install would pick.
func parseDependsField(value string) []string {
	var out []string
	for _, clause := range strings.Split(value, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		alternatives := strings.Split(clause, "|")
		name := stripVersionConstraint(alternatives[0])
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func parseProvidesField(value string) []string {
	var out []string
	for _, clause := range strings.Split(value, ",") {
		name := stripVersionConstraint(clause)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func stripVersionConstraint(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "("); idx >= 0 {
		s = s[:idx]
	}
	// Architecture qualifiers like "libc6:amd64"
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// MatchRequested takes requested package names and returns the matching
// PackageInfo entries. For several versions of the same name, the highest by
// lexicographic version sort wins.
func MatchRequested(requested []string, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	var out []ospackage.PackageInfo

	for _, want := range requested {
		var candidates []ospackage.PackageInfo
		for _, pi := range all {
			if pi.Name == want {
				candidates = append(candidates, pi)
			}
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("requested package %q not found in repo", want)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Version > candidates[j].Version
		})
		out = append(out, candidates[0])
	}
	return out, nil
}

// Resolve walks dependencies and returns the full closure of packages.
func Resolve(requested []ospackage.PackageInfo, all []ospackage.PackageInfo) ([]ospackage.PackageInfo, error) {
	return ospackage.ResolvePackageInfos(requested, all)
}
