package config

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// BuildRecipe is the declarative description of one application image:
// base filesystem, OS packages, python dependencies, files, directories and
// the runtime contract (workdir, ports, startup command).
type BuildRecipe struct {
	Image               ImageInfo           `json:"image"`
	Target              TargetInfo          `json:"target"`
	Base                BaseInfo            `json:"base"`
	PackageRepositories []PackageRepository `json:"packageRepositories,omitempty"`
	Packages            []string            `json:"packages,omitempty"`
	Python              *PythonInfo         `json:"python,omitempty"`
	SystemConfig        SystemConfig        `json:"systemConfig"`
}

type ImageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type TargetInfo struct {
	OS        string `json:"os"`
	Dist      string `json:"dist"`
	Arch      string `json:"arch"`
	ImageType string `json:"imageType"` // "oci" or "raw"
}

// BaseInfo identifies the base rootfs tarball the image is provisioned from.
type BaseInfo struct {
	RootfsURL string `json:"rootfsUrl"`
	SHA256    string `json:"sha256,omitempty"`
}

type PackageRepository struct {
	ID        string `json:"id,omitempty"`
	Codename  string `json:"codename"`
	URL       string `json:"url"`
	PKey      string `json:"pkey,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Component string `json:"component,omitempty"`
}

// PythonInfo binds the image to a pinned requirements manifest.
type PythonInfo struct {
	Requirements string `json:"requirements"`
	IndexURL     string `json:"indexUrl,omitempty"`
	Interpreter  string `json:"interpreter,omitempty"`
}

type SystemConfig struct {
	Name            string               `json:"name"`
	WorkDir         string               `json:"workDir,omitempty"`
	Directories     []DirectoryInfo      `json:"directories,omitempty"`
	AdditionalFiles []AdditionalFileInfo `json:"additionalFiles,omitempty"`
	Env             map[string]string    `json:"env,omitempty"`
	ExposedPorts    []PortInfo           `json:"exposedPorts,omitempty"`
	Entrypoint      []string             `json:"entrypoint,omitempty"`
	Cmd             []string             `json:"cmd,omitempty"`
	Users           []UserInfo           `json:"users,omitempty"`
	RunCommands     []string             `json:"runCommands,omitempty"`
}

type DirectoryInfo struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// AdditionalFileInfo maps a local file into the image filesystem.
type AdditionalFileInfo struct {
	Local string `json:"local"`
	Final string `json:"final"`
	Mode  string `json:"mode,omitempty"`
}

type PortInfo struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

type UserInfo struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	UID      int    `json:"uid,omitempty"`
	Home     string `json:"home,omitempty"`
	Shell    string `json:"shell,omitempty"`
}

// LoadRecipe reads and decodes a build recipe from a YAML file. Schema and
// semantic validation happen separately in config/validate.
func LoadRecipe(path string) (*BuildRecipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", path, err)
	}

	var recipe BuildRecipe
	if err := yaml.UnmarshalStrict(data, &recipe); err != nil {
		return nil, fmt.Errorf("parsing recipe %s: %w", path, err)
	}
	recipe.applyDefaults()
	return &recipe, nil
}

func (r *BuildRecipe) applyDefaults() {
	if r.Target.ImageType == "" {
		r.Target.ImageType = "oci"
	}
	if r.Python != nil && r.Python.Interpreter == "" {
		r.Python.Interpreter = "python3"
	}
	for i := range r.SystemConfig.ExposedPorts {
		if r.SystemConfig.ExposedPorts[i].Protocol == "" {
			r.SystemConfig.ExposedPorts[i].Protocol = "tcp"
		}
	}
}

// GetImageName returns the full image name, e.g. "form-service-1.0.0".
func (r *BuildRecipe) GetImageName() string {
	if r.Image.Version == "" {
		return r.Image.Name
	}
	return fmt.Sprintf("%s-%s", r.Image.Name, r.Image.Version)
}

// GetSystemConfigName returns the system configuration name, defaulting to
// the image name.
func (r *BuildRecipe) GetSystemConfigName() string {
	if r.SystemConfig.Name != "" {
		return r.SystemConfig.Name
	}
	return r.Image.Name
}

// GetPackages returns the OS package list.
func (r *BuildRecipe) GetPackages() []string {
	return r.Packages
}

// StartupCommand returns the declared process: entrypoint followed by cmd.
func (r *BuildRecipe) StartupCommand() []string {
	var out []string
	out = append(out, r.SystemConfig.Entrypoint...)
	out = append(out, r.SystemConfig.Cmd...)
	return out
}

// IsDebTarget reports whether the target OS uses deb packaging.
func (r *BuildRecipe) IsDebTarget() bool {
	switch strings.ToLower(r.Target.OS) {
	case "ubuntu", "debian":
		return true
	}
	return false
}
