package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/muesli/crunchy"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"

	"github.com/open-edge-platform/container-image-composer/internal/config"
)

// ValidateAgainstSchema validates JSON data against the given schema
// document. ref optionally selects a sub-schema by JSON pointer.
func ValidateAgainstSchema(name string, schema []byte, data []byte, ref string) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("adding schema resource %s: %w", name, err)
	}

	location := name
	if ref != "" {
		location = name + "#" + ref
	}
	sch, err := compiler.Compile(location)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", location, err)
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("parsing JSON data: %w", err)
	}
	if err := sch.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateRecipeJSON validates a JSON-encoded build recipe against the
// embedded recipe schema.
func ValidateRecipeJSON(data []byte) error {
	return ValidateAgainstSchema("recipe.schema.json", []byte(recipeSchema), data, "")
}

// ValidateRecipeYAML converts a YAML recipe document to JSON and validates it.
func ValidateRecipeYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting recipe YAML to JSON: %w", err)
	}
	return ValidateRecipeJSON(jsonData)
}

// ValidateRecipe runs the semantic checks that the schema cannot express.
func ValidateRecipe(recipe *config.BuildRecipe) error {
	if recipe.SystemConfig.WorkDir != "" && !strings.HasPrefix(recipe.SystemConfig.WorkDir, "/") {
		return fmt.Errorf("workDir %q must be an absolute path", recipe.SystemConfig.WorkDir)
	}

	// Relative directory paths resolve against workDir
	for _, dir := range recipe.SystemConfig.Directories {
		if !strings.HasPrefix(dir.Path, "/") && recipe.SystemConfig.WorkDir == "" {
			return fmt.Errorf("directory path %q must be absolute when no workDir is set", dir.Path)
		}
	}
	for _, file := range recipe.SystemConfig.AdditionalFiles {
		if !strings.HasPrefix(file.Final, "/") {
			return fmt.Errorf("additional file final path %q must be absolute", file.Final)
		}
	}

	if len(recipe.StartupCommand()) == 0 {
		return fmt.Errorf("recipe declares no entrypoint or cmd")
	}

	seen := make(map[string]struct{})
	for _, port := range recipe.SystemConfig.ExposedPorts {
		key := fmt.Sprintf("%d/%s", port.Port, port.Protocol)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("exposed port %s declared twice", key)
		}
		seen[key] = struct{}{}
	}

	if err := validateUserPasswords(recipe.SystemConfig.Users); err != nil {
		return err
	}

	if datePattern.MatchString(recipe.Image.Name) {
		return fmt.Errorf("image name %q contains a date stamp; rebuilding the recipe must yield the same ref", recipe.Image.Name)
	}
	if datePattern.MatchString(recipe.Image.Version) {
		return fmt.Errorf("image version %q contains a date stamp; rebuilding the recipe must yield the same ref", recipe.Image.Version)
	}

	return nil
}

// datePattern matches calendar stamps (20240131, 2024-01-31, 2024.01.31)
// in image identity fields.
var datePattern = regexp.MustCompile(`20\d{2}[-.]?(0[1-9]|1[0-2])[-.]?(0[1-9]|[12]\d|3[01])`)

// validateUserPasswords rejects weak passwords on recipe-declared users.
// Baking a guessable password into an image is unrecoverable after release.
func validateUserPasswords(users []config.UserInfo) error {
	validator := crunchy.NewValidator()
	for _, user := range users {
		if user.Password == "" {
			continue
		}
		if err := validator.Check(user.Password); err != nil {
			return fmt.Errorf("user %s: password rejected: %w", user.Name, err)
		}
	}
	return nil
}
