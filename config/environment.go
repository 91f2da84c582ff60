package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
)

const (
	// EnvironmentDevelopment exposes the canonical development environment
	// identifier.
	EnvironmentDevelopment = environmentDevelopment
	// EnvironmentProduction exposes the canonical production environment
	// identifier.
	EnvironmentProduction = environmentProduction
	// EnvironmentStaging exposes the canonical staging environment
	// identifier.
	EnvironmentStaging = environmentStaging
)

var environmentAliases = map[string]string{
	"prod":  environmentProduction,
	"dev":   environmentDevelopment,
	"stag":  environmentStaging,
	"stage": environmentStaging,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// envConfigPaths maps each known environment to config.<env>.yml next to the
// default file.
func envConfigPaths(defaultPath string) map[string]string {
	dir := filepath.Dir(defaultPath)
	ext := filepath.Ext(defaultPath)
	base := strings.TrimSuffix(filepath.Base(defaultPath), ext)

	paths := make(map[string]string, 3)
	for _, env := range []string{environmentDevelopment, environmentProduction, environmentStaging} {
		paths[env] = filepath.Join(dir, base+"."+env+ext)
	}
	return paths
}

// resolveEnvSpecificPath selects an environment specific configuration file
// when one exists for the current environment and the caller did not ask for a
// specific file.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}
	if path != defaultPath {
		return path
	}

	if envPath, ok := envPaths[getAppEnvironment()]; ok {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	return path
}

// AppEnvironment exposes the current application environment as configured
// through APP_ENV, normalised with the same alias rules used to pick config
// files.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether the provided environment should behave like
// a production deployment.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}
