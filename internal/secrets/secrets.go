// Package secrets loads API keys from a dotenv file, the environment, or
// mounted secret files.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SecretsDir is where container runtimes mount secret files.
var SecretsDir = "/run/secrets"

// ParseEnvFile reads KEY=value lines. Blank lines, comments and lines
// without '=' are skipped; an "export " prefix and matching quotes are
// stripped.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	vars := map[string]string{}
	for _, line := range splitLines(data) {
		s := strings.TrimSpace(string(line))
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		eqIdx := strings.IndexByte(s, '=')
		if eqIdx < 0 {
			continue
		}
		key := strings.TrimSpace(s[:eqIdx])
		if key == "" {
			continue
		}
		vars[key] = stripQuotes(strings.TrimSpace(s[eqIdx+1:]))
	}
	return vars, nil
}

// Export sets every variable from the env file that is not already set in
// the environment and returns the names it set, sorted.
func Export(path string) ([]string, error) {
	vars, err := ParseEnvFile(path)
	if err != nil {
		return nil, err
	}
	var set []string
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return set, fmt.Errorf("setting %s: %w", k, err)
		}
		set = append(set, k)
	}
	sort.Strings(set)
	return set, nil
}

// Lookup returns the value of an environment variable, falling back to a
// secret file named after it in lower case (OPENAI_API_KEY reads
// /run/secrets/openai_api_key).
func Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, true
	}
	data, err := os.ReadFile(filepath.Join(SecretsDir, strings.ToLower(name)))
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	return v, v != ""
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
