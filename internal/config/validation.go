package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
)

// ValidationError represents a configuration issue with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}
	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

// ValidateConfigWithDetails reports problems that Load accepts but that are
// likely mistakes, alongside hard errors.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	if err := validateConfig(config); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "config",
			Message: err.Error(),
		})
	}

	validateServerConfigDetails(config, result)
	validateBuildConfigDetails(&config.Build, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *Config, result *ValidationResult) {
	server := &config.Server
	if server.Port > 0 && server.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.port",
			Value:   server.Port,
			Message: "port below 1024 requires elevated privileges",
			Suggestions: []string{
				"Consider using a port above 1024 for development",
			},
		})
	}

	if server.Environment == EnvProduction && server.LiveReload {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.live_reload",
			Value:   server.LiveReload,
			Message: "live reload is only served in development and will be ignored",
			Suggestions: []string{
				"Set server.live_reload to false for production deployments",
			},
		})
	}

	if root := config.StaticRoot(); !pathExists(root) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "server.static_dir",
			Value:   root,
			Message: fmt.Sprintf("static directory %s does not exist yet", root),
			Suggestions: []string{
				"Run 'isomorph build' to produce the output directory",
			},
		})
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if !pathExists(config.Shell) {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "build.shell",
			Value:   config.Shell,
			Message: "shell template not found; the embedded default shell will be served",
			Suggestions: []string{
				"Create the file with a <div id=\"root\"><!--ROOT--></div> placeholder",
			},
		})
	}
}

// Helper validation functions

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if host == "localhost" {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("has invalid hostname format")
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
