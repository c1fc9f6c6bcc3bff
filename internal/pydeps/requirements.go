package pydeps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Requirement is one pinned dependency from a requirements manifest.
type Requirement struct {
	Name    string   // normalized distribution name, e.g. "fastapi"
	Version string   // exact pinned version, e.g. "0.110.0"
	Extras  []string // optional extras, e.g. ["standard"]
	Marker  string   // raw environment marker, if any
}

// ParseRequirementsFile reads a requirements.txt manifest. The manifest is
// the version contract for the image, so every entry must be an exact
// `name==version` pin; ranges, direct URLs and option lines are rejected.
func ParseRequirementsFile(path string) ([]Requirement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements manifest %s: %w", path, err)
	}
	defer f.Close()

	reqs, err := ParseRequirements(f)
	if err != nil {
		return nil, fmt.Errorf("parsing requirements manifest %s: %w", path, err)
	}
	return reqs, nil
}

// ParseRequirements parses requirements manifest content.
func ParseRequirements(r io.Reader) ([]Requirement, error) {
	var reqs []Requirement

	scanner := bufio.NewScanner(r)
	lineNo := 0
	var pending string
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// Line continuations
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSuffix(line, "\\")
			continue
		}
		line = pending + line
		pending = ""

		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") {
			return nil, fmt.Errorf("line %d: option lines are not supported in a pinned manifest: %q", lineNo, line)
		}

		req, err := parseRequirementLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if pending != "" {
		return nil, fmt.Errorf("manifest ends with a dangling line continuation")
	}

	return reqs, nil
}

func parseRequirementLine(line string) (Requirement, error) {
	var req Requirement

	if marker, rest, found := cutMarker(line); found {
		req.Marker = marker
		line = rest
	}

	spec, version, found := strings.Cut(line, "==")
	if !found {
		return req, fmt.Errorf("requirement %q is not an exact pin (expected name==version)", line)
	}
	if strings.ContainsAny(version, "<>=!~,") {
		return req, fmt.Errorf("requirement %q uses a version range, only exact pins are supported", line)
	}

	spec = strings.TrimSpace(spec)
	if idx := strings.Index(spec, "["); idx >= 0 {
		if !strings.HasSuffix(spec, "]") {
			return req, fmt.Errorf("requirement %q has malformed extras", line)
		}
		for _, extra := range strings.Split(spec[idx+1:len(spec)-1], ",") {
			extra = strings.TrimSpace(extra)
			if extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
		spec = spec[:idx]
	}

	req.Name = NormalizeName(spec)
	req.Version = strings.TrimSpace(version)
	if req.Name == "" || req.Version == "" {
		return req, fmt.Errorf("requirement %q is missing a name or version", line)
	}
	return req, nil
}

// cutMarker splits off a PEP 508 environment marker.
func cutMarker(line string) (marker, rest string, found bool) {
	if rest, marker, ok := strings.Cut(line, ";"); ok {
		return strings.TrimSpace(marker), strings.TrimSpace(rest), true
	}
	return "", line, false
}

func stripComment(line string) string {
	if idx := strings.Index(line, "#"); idx >= 0 {
		// A '#' starts a comment at line start or after whitespace
		if idx == 0 || line[idx-1] == ' ' || line[idx-1] == '\t' {
			return line[:idx]
		}
	}
	return line
}

// NormalizeName lowercases a distribution name and collapses runs of
// '-', '_' and '.' into single dashes, per the packaging name rules.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		if r == '-' || r == '_' || r == '.' {
			if !lastDash {
				b.WriteRune('-')
			}
			lastDash = true
			continue
		}
		lastDash = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "-")
}
