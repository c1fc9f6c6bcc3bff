package imageinspect

import (
	"fmt"
	"path"
	"reflect"

	"github.com/open-edge-platform/container-image-composer/internal/config"
	"github.com/open-edge-platform/container-image-composer/internal/utils/slice"
)

// VerifyResult lists the recipe properties an image failed to satisfy.
type VerifyResult struct {
	Ref      string   `json:"ref"`
	Findings []string `json:"findings,omitempty"`
}

// OK reports whether verification found no deviations.
func (v *VerifyResult) OK() bool {
	return len(v.Findings) == 0
}

// Verify checks a built image against the runtime contract of its recipe:
// exposed ports, working directory, startup command, declared directories
// and placed files.
func Verify(ins *Inspector, recipe *config.BuildRecipe) (*VerifyResult, error) {
	result := &VerifyResult{Ref: ins.Ref()}
	cfg := ins.Config()

	for _, p := range recipe.SystemConfig.ExposedPorts {
		key := fmt.Sprintf("%d/%s", p.Port, p.Protocol)
		if _, ok := cfg.Config.ExposedPorts[key]; !ok {
			result.Findings = append(result.Findings, fmt.Sprintf("port %s is not exposed", key))
		}
	}

	if want := recipe.SystemConfig.WorkDir; want != "" && cfg.Config.WorkingDir != want {
		result.Findings = append(result.Findings,
			fmt.Sprintf("working directory is %q, recipe declares %q", cfg.Config.WorkingDir, want))
	}

	declared := append(append([]string{}, cfg.Config.Entrypoint...), cfg.Config.Cmd...)
	if len(declared) == 0 {
		result.Findings = append(result.Findings, "image declares no startup command")
	} else if want := recipe.StartupCommand(); len(want) > 0 && !reflect.DeepEqual(declared, want) {
		result.Findings = append(result.Findings,
			fmt.Sprintf("startup command %v does not match recipe %v", declared, want))
	}

	for name, value := range recipe.SystemConfig.Env {
		if !slice.Contains(cfg.Config.Env, name+"="+value) {
			result.Findings = append(result.Findings,
				fmt.Sprintf("environment variable %s=%s is not set", name, value))
		}
	}

	for _, dir := range recipe.SystemConfig.Directories {
		target := dir.Path
		if !path.IsAbs(target) && recipe.SystemConfig.WorkDir != "" {
			target = path.Join(recipe.SystemConfig.WorkDir, target)
		}
		found, err := ins.HasPath(target)
		if err != nil {
			return nil, fmt.Errorf("checking directory %s: %w", target, err)
		}
		if !found {
			result.Findings = append(result.Findings, fmt.Sprintf("directory %s is missing", target))
		}
	}

	for _, file := range recipe.SystemConfig.AdditionalFiles {
		found, err := ins.HasPath(file.Final)
		if err != nil {
			return nil, fmt.Errorf("checking file %s: %w", file.Final, err)
		}
		if !found {
			result.Findings = append(result.Findings, fmt.Sprintf("file %s is missing", file.Final))
		}
	}

	return result, nil
}
