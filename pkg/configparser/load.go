package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadYamlFile reads a YAML file and exports its leaves as environment variables.
// Nested keys are joined with "_" and upper-cased: database.host -> DATABASE_HOST.
// Variables already present in the environment win.
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	file, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}
	defer file.Close()

	return loadYaml(file)
}

func loadYaml(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	type level struct {
		indent int
		name   string
	}
	var stack []level

	for scanner.Scan() {
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " "))

		// leave every section that is not a parent of this line
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}

		key, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripComment(strings.TrimSpace(value))

		if value == "" {
			stack = append(stack, level{indent: indent, name: key})
			continue
		}

		value = expand(strings.Trim(value, `"'`))

		parts := make([]string, 0, len(stack)+1)
		for _, l := range stack {
			parts = append(parts, l.name)
		}
		fullKey := strings.ToUpper(strings.Join(append(parts, key), "_"))

		if os.Getenv(fullKey) == "" {
			if err := os.Setenv(fullKey, value); err != nil {
				return fmt.Errorf("could not set env var %s: %w", fullKey, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}
	return nil
}

// expand resolves the ${VAR:-default} form.
func expand(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	name, def, ok := strings.Cut(value[2:len(value)-1], ":-")
	if !ok {
		return os.Getenv(strings.TrimSpace(name))
	}
	if v := os.Getenv(strings.TrimSpace(name)); v != "" {
		return v
	}
	return strings.TrimSpace(def)
}

func stripComment(value string) string {
	if strings.HasPrefix(value, `"`) || strings.HasPrefix(value, "'") {
		return value
	}
	if i := strings.Index(value, " #"); i >= 0 {
		return strings.TrimSpace(value[:i])
	}
	return value
}
