package imageinspect

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderJSON renders an inspection report as indented JSON.
func RenderJSON(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return string(data) + "\n", nil
}

// RenderText renders an inspection report for terminal output.
func RenderText(report *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Image:        %s\n", report.Ref)
	fmt.Fprintf(&b, "Digest:       %s\n", report.ManifestDigest)
	fmt.Fprintf(&b, "Created:      %s\n", report.Created.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Platform:     %s/%s\n", report.OS, report.Architecture)
	if report.User != "" {
		fmt.Fprintf(&b, "User:         %s\n", report.User)
	}
	if report.WorkingDir != "" {
		fmt.Fprintf(&b, "Working dir:  %s\n", report.WorkingDir)
	}
	if len(report.ExposedPorts) > 0 {
		fmt.Fprintf(&b, "Ports:        %s\n", strings.Join(report.ExposedPorts, ", "))
	}
	if len(report.Entrypoint) > 0 {
		fmt.Fprintf(&b, "Entrypoint:   %s\n", strings.Join(report.Entrypoint, " "))
	}
	if len(report.Cmd) > 0 {
		fmt.Fprintf(&b, "Cmd:          %s\n", strings.Join(report.Cmd, " "))
	}
	for _, env := range report.Env {
		fmt.Fprintf(&b, "Env:          %s\n", env)
	}

	fmt.Fprintf(&b, "Layers:       %d\n", len(report.Layers))
	for i, l := range report.Layers {
		fmt.Fprintf(&b, "  [%d] %s  %d bytes, %d entries\n", i, l.Digest, l.Size, l.Entries)
	}
	return b.String()
}

// RenderVerifyText renders a verification result for terminal output.
func RenderVerifyText(result *VerifyResult) string {
	var b strings.Builder

	if result.OK() {
		fmt.Fprintf(&b, "Image %s satisfies its recipe\n", result.Ref)
		return b.String()
	}

	fmt.Fprintf(&b, "Image %s deviates from its recipe:\n", result.Ref)
	for _, finding := range result.Findings {
		fmt.Fprintf(&b, "  - %s\n", finding)
	}
	return b.String()
}
