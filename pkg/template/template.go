// Package template renders dynamic expressions inside step configurations.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// NeedsTemplating reports whether the string contains template markers.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderWithContext evaluates a template against the run's execution
// context and coerces the result into JSON, number or boolean when it
// looks like one.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, executionCtx.TemplateData())
}

// RenderString evaluates a template and returns the raw rendered text.
// Step configurations go through this variant so values such as
// interpreter versions stay strings.
func RenderString(input string, executionCtx *models.ExecutionContext) (string, error) {
	return execute(input, executionCtx.TemplateData())
}

func Render(templateStr string, data any) (any, error) {
	result, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	// Try to parse as JSON if it looks like JSON
	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	// Try to parse as number
	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	// Try to parse as boolean
	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// RenderConfig walks a step configuration and renders every templated
// string in place. Nested maps and lists are rendered recursively; all
// other value types pass through untouched.
func RenderConfig(config map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	rendered, err := renderValue(config, executionCtx)
	if err != nil {
		return nil, err
	}

	return rendered.(map[string]any), nil
}

func renderValue(value any, executionCtx *models.ExecutionContext) (any, error) {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v, nil
		}

		return RenderString(v, executionCtx)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			rendered, err := renderValue(item, executionCtx)
			if err != nil {
				return nil, fmt.Errorf("config key %q: %w", key, err)
			}

			out[key] = rendered
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			rendered, err := renderValue(item, executionCtx)
			if err != nil {
				return nil, err
			}

			out[i] = rendered
		}

		return out, nil
	default:
		return value, nil
	}
}
