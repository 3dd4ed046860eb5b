package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const overlayEnvVar = "HANDOFF_CONFIG"

// Load reads the given .env files (".env" when none) and the YAML file named by
// HANDOFF_CONFIG into the environment, then returns the configuration. Variables already
// set in the environment win. Missing files are skipped.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "[config Load] %s", file)
		}
	}
	if path := os.Getenv(overlayEnvVar); path != "" {
		if err := loadYAML(path); err != nil {
			return nil, err
		}
	}
	return New(), nil
}

// loadYAML reads a flat map of variable names to values. Lists are joined with commas.
func loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "[config loadYAML] %s", path)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return errors.Wrapf(err, "[config loadYAML] %s", path)
	}
	for key, value := range values {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, yamlString(value)); err != nil {
			return errors.Wrapf(err, "[config loadYAML] %s", name)
		}
	}
	return nil
}

func yamlString(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}
