package imageinspect

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/open-edge-platform/container-image-composer/internal/image/layer"
	"github.com/open-edge-platform/container-image-composer/internal/image/ocimaker"
)

// LayerSummary describes one layer of an inspected image.
type LayerSummary struct {
	Digest    string `json:"digest"`
	DiffID    string `json:"diffId"`
	MediaType string `json:"mediaType"`
	Size      int64  `json:"size"`
	Entries   int    `json:"entries"`
}

// Report is the inspection result for one image in a layout.
type Report struct {
	Ref            string         `json:"ref"`
	ManifestDigest string         `json:"manifestDigest"`
	Created        time.Time      `json:"created"`
	Architecture   string         `json:"architecture"`
	OS             string         `json:"os"`
	User           string         `json:"user,omitempty"`
	ExposedPorts   []string       `json:"exposedPorts,omitempty"`
	Env            []string       `json:"env,omitempty"`
	Entrypoint     []string       `json:"entrypoint,omitempty"`
	Cmd            []string       `json:"cmd,omitempty"`
	WorkingDir     string         `json:"workingDir,omitempty"`
	Layers         []LayerSummary `json:"layers"`
}

// Inspector reads images back out of an OCI layout directory.
type Inspector struct {
	layoutDir string
	manifest  ocimaker.Manifest
	config    ocimaker.ImageConfig
	ref       string
	digest    string
}

// Open loads the first manifest from the layout at layoutDir.
func Open(layoutDir string) (*Inspector, error) {
	indexData, err := os.ReadFile(filepath.Join(layoutDir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("reading layout index: %w", err)
	}

	var index ocimaker.Index
	if err := json.Unmarshal(indexData, &index); err != nil {
		return nil, fmt.Errorf("parsing layout index: %w", err)
	}
	if len(index.Manifests) == 0 {
		return nil, fmt.Errorf("layout %s contains no manifests", layoutDir)
	}

	desc := index.Manifests[0]
	ins := &Inspector{
		layoutDir: layoutDir,
		ref:       desc.Annotations[ocimaker.AnnotationRefName],
		digest:    desc.Digest,
	}

	if err := ins.readBlob(desc.Digest, &ins.manifest); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := ins.readBlob(ins.manifest.Config.Digest, &ins.config); err != nil {
		return nil, fmt.Errorf("reading image config: %w", err)
	}
	return ins, nil
}

func (ins *Inspector) readBlob(digest string, v any) error {
	hexDigest, ok := strings.CutPrefix(digest, "sha256:")
	if !ok {
		return fmt.Errorf("unsupported digest algorithm in %q", digest)
	}
	data, err := os.ReadFile(filepath.Join(ins.layoutDir, "blobs", "sha256", hexDigest))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (ins *Inspector) blobPath(digest string) string {
	return filepath.Join(ins.layoutDir, "blobs", "sha256", strings.TrimPrefix(digest, "sha256:"))
}

// Ref returns the image reference recorded in the layout index.
func (ins *Inspector) Ref() string { return ins.ref }

// Config returns the parsed image configuration blob.
func (ins *Inspector) Config() ocimaker.ImageConfig { return ins.config }

// Report summarizes the image, including per-layer entry counts.
func (ins *Inspector) Report() (*Report, error) {
	report := &Report{
		Ref:            ins.ref,
		ManifestDigest: ins.digest,
		Created:        ins.config.Created,
		Architecture:   ins.config.Architecture,
		OS:             ins.config.OS,
		User:           ins.config.Config.User,
		Env:            ins.config.Config.Env,
		Entrypoint:     ins.config.Config.Entrypoint,
		Cmd:            ins.config.Config.Cmd,
		WorkingDir:     ins.config.Config.WorkingDir,
	}

	for port := range ins.config.Config.ExposedPorts {
		report.ExposedPorts = append(report.ExposedPorts, port)
	}
	sort.Strings(report.ExposedPorts)

	for i, desc := range ins.manifest.Layers {
		entries, err := ins.countEntries(desc)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", desc.Digest, err)
		}
		summary := LayerSummary{
			Digest:    desc.Digest,
			MediaType: desc.MediaType,
			Size:      desc.Size,
			Entries:   entries,
		}
		if i < len(ins.config.RootFS.DiffIDs) {
			summary.DiffID = ins.config.RootFS.DiffIDs[i]
		}
		report.Layers = append(report.Layers, summary)
	}
	return report, nil
}

func (ins *Inspector) countEntries(desc ocimaker.Descriptor) (int, error) {
	rc, err := layer.Open(ins.blobPath(desc.Digest), desc.MediaType)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	count := 0
	tr := tar.NewReader(rc)
	for {
		if _, err := tr.Next(); err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// HasPath reports whether any layer of the image contains the given
// absolute path, as a file or a directory.
func (ins *Inspector) HasPath(path string) (bool, error) {
	want := strings.Trim(filepath.ToSlash(path), "/")
	if want == "" {
		return false, fmt.Errorf("empty path")
	}

	for _, desc := range ins.manifest.Layers {
		found, err := ins.layerHasPath(desc, want)
		if err != nil {
			return false, fmt.Errorf("layer %s: %w", desc.Digest, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (ins *Inspector) layerHasPath(desc ocimaker.Descriptor, want string) (bool, error) {
	rc, err := layer.Open(ins.blobPath(desc.Digest), desc.MediaType)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		name := strings.Trim(filepath.ToSlash(hdr.Name), "/")
		if name == want {
			return true, nil
		}
	}
}
