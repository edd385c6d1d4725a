package inventory

import (
	"fmt"
	"strings"
)

// MissingParameterError reports a required input absent from the merged
// variable scope. It is raised before any host connection is opened.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Name)
}

// Scope is the merged view of explicit inputs, inventory group vars and
// environment overrides that a workflow validates against before running.
type Scope map[string]string

// MergeScope layers variable maps into a single scope. Later layers win.
func MergeScope(layers ...map[string]string) Scope {
	s := Scope{}
	for _, layer := range layers {
		for k, v := range layer {
			if v != "" {
				s[k] = v
			}
		}
	}
	return s
}

// envKeys maps HOSTPREP_* environment variables to scope parameter names.
var envKeys = map[string]string{
	"HOSTPREP_HOSTS":      "hosts",
	"HOSTPREP_CONNECTION": "connection",
	"HOSTPREP_CI_USER":    "ci_user_name",
}

// FromEnv extracts the scope parameters present in an environment list of
// the form returned by os.Environ.
func FromEnv(environ []string) map[string]string {
	vars := map[string]string{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if name, known := envKeys[k]; known {
			vars[name] = v
		}
	}
	return vars
}

// Require checks that every named parameter is present and non-empty,
// returning a MissingParameterError for the first one that is not. It has
// no side effects; workflows must call it before opening any connection.
func (s Scope) Require(names ...string) error {
	for _, name := range names {
		if s[name] == "" {
			return &MissingParameterError{Name: name}
		}
	}
	return nil
}
