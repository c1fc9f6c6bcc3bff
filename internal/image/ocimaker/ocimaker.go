package ocimaker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/open-edge-platform/container-image-composer/internal/image/layer"
	"github.com/open-edge-platform/container-image-composer/internal/utils/logger"
)

const (
	mediaTypeManifest    = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeImageConfig = "application/vnd.oci.image.config.v1+json"
	schemaVersion        = 2

	// AnnotationRefName carries the image reference in the layout index.
	AnnotationRefName = "org.opencontainers.image.ref.name"
)

// Descriptor references one blob in the layout.
type Descriptor struct {
	MediaType   string            `json:"mediaType"`
	Digest      string            `json:"digest"`
	Size        int64             `json:"size"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Manifest ties the image config to its ordered layer blobs.
type Manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType"`
	Config        Descriptor   `json:"config"`
	Layers        []Descriptor `json:"layers"`
}

// Index is the layout entry point listing available manifests.
type Index struct {
	SchemaVersion int          `json:"schemaVersion"`
	Manifests     []Descriptor `json:"manifests"`
}

// RuntimeConfig is the runtime contract baked into the image config blob.
type RuntimeConfig struct {
	User         string
	Env          []string
	Entrypoint   []string
	Cmd          []string
	WorkingDir   string
	ExposedPorts []string // "port/protocol" form, e.g. "5000/tcp"
	Labels       map[string]string
}

// ImageConfig is the OCI image configuration blob.
type ImageConfig struct {
	Created      time.Time      `json:"created"`
	Architecture string         `json:"architecture"`
	OS           string         `json:"os"`
	Config       containerSpec  `json:"config"`
	RootFS       rootFS         `json:"rootfs"`
	History      []HistoryEntry `json:"history,omitempty"`
}

type containerSpec struct {
	User         string              `json:"User,omitempty"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts,omitempty"`
	Env          []string            `json:"Env,omitempty"`
	Entrypoint   []string            `json:"Entrypoint,omitempty"`
	Cmd          []string            `json:"Cmd,omitempty"`
	WorkingDir   string              `json:"WorkingDir,omitempty"`
	Labels       map[string]string   `json:"Labels,omitempty"`
}

type rootFS struct {
	Type    string   `json:"type"`
	DiffIDs []string `json:"diff_ids"`
}

// HistoryEntry records one build step in the image config.
type HistoryEntry struct {
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"created_by,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	EmptyLayer bool      `json:"empty_layer,omitempty"`
}

// Make finalizes an image layout directory: it writes the config blob, the
// manifest blob, index.json and the oci-layout marker. Layer blobs must
// already be present under blobs/sha256. The manifest digest is returned.
func Make(layoutDir, ref, arch string, created time.Time, rt RuntimeConfig, layers []*layer.Layer, history []HistoryEntry) (string, error) {
	log := logger.Logger()

	cfg := ImageConfig{
		Created:      created.UTC(),
		Architecture: ociArch(arch),
		OS:           "linux",
		Config: containerSpec{
			User:       rt.User,
			Env:        rt.Env,
			Entrypoint: rt.Entrypoint,
			Cmd:        rt.Cmd,
			WorkingDir: rt.WorkingDir,
			Labels:     rt.Labels,
		},
		RootFS:  rootFS{Type: "layers"},
		History: history,
	}
	for _, port := range rt.ExposedPorts {
		if cfg.Config.ExposedPorts == nil {
			cfg.Config.ExposedPorts = map[string]struct{}{}
		}
		cfg.Config.ExposedPorts[port] = struct{}{}
	}
	for _, l := range layers {
		cfg.RootFS.DiffIDs = append(cfg.RootFS.DiffIDs, l.DiffID)
	}

	configDesc, err := writeBlob(layoutDir, mediaTypeImageConfig, cfg)
	if err != nil {
		return "", fmt.Errorf("writing image config: %w", err)
	}

	manifest := Manifest{
		SchemaVersion: schemaVersion,
		MediaType:     mediaTypeManifest,
		Config:        configDesc,
	}
	for _, l := range layers {
		manifest.Layers = append(manifest.Layers, Descriptor{
			MediaType: l.MediaType,
			Digest:    l.Digest,
			Size:      l.Size,
		})
	}

	manifestDesc, err := writeBlob(layoutDir, mediaTypeManifest, manifest)
	if err != nil {
		return "", fmt.Errorf("writing image manifest: %w", err)
	}
	manifestDesc.Annotations = map[string]string{AnnotationRefName: ref}

	index := Index{
		SchemaVersion: schemaVersion,
		Manifests:     []Descriptor{manifestDesc},
	}
	if err := writeJSONFile(filepath.Join(layoutDir, "index.json"), index); err != nil {
		return "", fmt.Errorf("writing layout index: %w", err)
	}

	layoutMarker := map[string]string{"imageLayoutVersion": "1.0.0"}
	if err := writeJSONFile(filepath.Join(layoutDir, "oci-layout"), layoutMarker); err != nil {
		return "", fmt.Errorf("writing layout marker: %w", err)
	}

	log.Infof("Image %s written to %s (%s)", ref, layoutDir, manifestDesc.Digest)
	return manifestDesc.Digest, nil
}

func writeBlob(layoutDir, mediaType string, v any) (Descriptor, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Descriptor{}, err
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	blobDir := filepath.Join(layoutDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return Descriptor{}, err
	}
	if err := os.WriteFile(filepath.Join(blobDir, digest), data, 0644); err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		MediaType: mediaType,
		Digest:    "sha256:" + digest,
		Size:      int64(len(data)),
	}, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// ociArch maps recipe architecture names to OCI platform names.
func ociArch(arch string) string {
	switch arch {
	case "x86_64", "amd64", "":
		return "amd64"
	case "aarch64", "arm64":
		return "arm64"
	default:
		return arch
	}
}
