package validate

import (
	"strings"
	"testing"

	"github.com/open-edge-platform/container-image-composer/internal/config"
)

const validRecipeYAML = `image:
  name: form-service
  version: 1.0.0
target:
  os: debian
  dist: bookworm
  arch: x86_64
base:
  rootfsUrl: https://example.com/rootfs/bookworm-minimal-x86_64.tar.gz
packages:
  - tesseract-ocr
  - chromium
  - libpq5
python:
  requirements: requirements.txt
systemConfig:
  workDir: /app
  directories:
    - path: /app/static/uploads
      mode: "0755"
  exposedPorts:
    - port: 5000
      protocol: tcp
  cmd: ["python3", "main.py"]
`

func TestValidateRecipeYAMLAccepts(t *testing.T) {
	if err := ValidateRecipeYAML([]byte(validRecipeYAML)); err != nil {
		t.Fatalf("Expected valid recipe to pass schema validation: %v", err)
	}
}

func TestValidateRecipeYAMLRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:   "missing image",
			mutate: func(s string) string { return strings.Replace(s, "image:", "imageX:", 1) },
		},
		{
			name:   "port out of range",
			mutate: func(s string) string { return strings.Replace(s, "port: 5000", "port: 70000", 1) },
		},
		{
			name:   "bad arch",
			mutate: func(s string) string { return strings.Replace(s, "arch: x86_64", "arch: sparc", 1) },
		},
		{
			name:   "bad directory mode",
			mutate: func(s string) string { return strings.Replace(s, `mode: "0755"`, `mode: "rwx"`, 1) },
		},
		{
			name:   "uppercase image name",
			mutate: func(s string) string { return strings.Replace(s, "name: form-service", "name: FormService", 1) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRecipeYAML([]byte(tt.mutate(validRecipeYAML))); err == nil {
				t.Errorf("Expected schema validation to fail for %s", tt.name)
			}
		})
	}
}

func TestValidateRecipeSemantic(t *testing.T) {
	base := func() *config.BuildRecipe {
		return &config.BuildRecipe{
			Image:  config.ImageInfo{Name: "form-service"},
			Target: config.TargetInfo{OS: "debian", Arch: "x86_64"},
			SystemConfig: config.SystemConfig{
				WorkDir: "/app",
				Cmd:     []string{"python3", "main.py"},
				ExposedPorts: []config.PortInfo{
					{Port: 5000, Protocol: "tcp"},
				},
			},
		}
	}

	if err := ValidateRecipe(base()); err != nil {
		t.Fatalf("Expected valid recipe to pass: %v", err)
	}

	t.Run("relative workdir", func(t *testing.T) {
		r := base()
		r.SystemConfig.WorkDir = "app"
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for relative workDir")
		}
	})

	t.Run("relative directory resolves against workdir", func(t *testing.T) {
		r := base()
		r.SystemConfig.Directories = []config.DirectoryInfo{{Path: "static/uploads"}}
		if err := ValidateRecipe(r); err != nil {
			t.Errorf("Expected relative directory with workDir to pass: %v", err)
		}
	})

	t.Run("relative directory without workdir", func(t *testing.T) {
		r := base()
		r.SystemConfig.WorkDir = ""
		r.SystemConfig.Directories = []config.DirectoryInfo{{Path: "static/uploads"}}
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for relative directory path without workDir")
		}
	})

	t.Run("no startup command", func(t *testing.T) {
		r := base()
		r.SystemConfig.Cmd = nil
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for missing startup command")
		}
	})

	t.Run("duplicate port", func(t *testing.T) {
		r := base()
		r.SystemConfig.ExposedPorts = append(r.SystemConfig.ExposedPorts,
			config.PortInfo{Port: 5000, Protocol: "tcp"})
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for duplicate exposed port")
		}
	})

	t.Run("weak user password", func(t *testing.T) {
		r := base()
		r.SystemConfig.Users = []config.UserInfo{{Name: "svc", Password: "password"}}
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for weak user password")
		}
	})

	t.Run("date-stamped version", func(t *testing.T) {
		for _, version := range []string{"1.0.0-20240131", "2024-01-31", "2024.01.31"} {
			r := base()
			r.Image.Version = version
			if err := ValidateRecipe(r); err == nil {
				t.Errorf("Expected error for date-stamped version %q", version)
			}
		}
	})

	t.Run("date-stamped name", func(t *testing.T) {
		r := base()
		r.Image.Name = "form-service-20240131"
		if err := ValidateRecipe(r); err == nil {
			t.Error("Expected error for date-stamped image name")
		}
	})

	t.Run("plain version is fine", func(t *testing.T) {
		r := base()
		r.Image.Version = "1.20.3"
		if err := ValidateRecipe(r); err != nil {
			t.Errorf("Expected version 1.20.3 to pass, got %v", err)
		}
	})

	t.Run("no password is fine", func(t *testing.T) {
		r := base()
		r.SystemConfig.Users = []config.UserInfo{{Name: "svc"}}
		if err := ValidateRecipe(r); err != nil {
			t.Errorf("Expected passwordless user to pass, got %v", err)
		}
	})
}

// FuzzValidateAgainstSchema tests schema validation with various inputs.
func FuzzValidateAgainstSchema(f *testing.F) {
	basicSchema := []byte(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"version": {"type": "string"}
		},
		"required": ["name"]
	}`)

	f.Add("test-schema", basicSchema, []byte(`{"name": "test", "version": "1.0"}`), "")
	f.Add("test-schema", basicSchema, []byte(`{}`), "")
	f.Add("test-schema", basicSchema, []byte(`{"name": null}`), "")
	f.Add("test-schema", basicSchema, []byte(`invalid json`), "")
	f.Add("test-schema", basicSchema, []byte(`null`), "")
	f.Add("test-schema", basicSchema, []byte(`[]`), "")

	f.Fuzz(func(t *testing.T, name string, schema []byte, data []byte, ref string) {
		if name == "" || strings.Contains(name, "#") || len(name) < 3 {
			t.Skip("Skipping invalid schema name")
		}
		if len(schema) < 10 {
			t.Skip("Skipping too small schema")
		}
		// Should not panic for any input
		_ = ValidateAgainstSchema(name, schema, data, ref)
	})
}

// FuzzValidateRecipeJSON tests recipe validation with arbitrary JSON.
func FuzzValidateRecipeJSON(f *testing.F) {
	f.Add([]byte(`{"image": {"name": "x"}, "target": {"os": "debian", "arch": "x86_64"}, "base": {"rootfsUrl": "u"}, "systemConfig": {}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"image": null}`))
	f.Add([]byte(`invalid json content`))
	f.Add([]byte(`null`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`"string"`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic for any input
		_ = ValidateRecipeJSON(data)
	})
}
