// Package defs loads declarative pipeline definitions from YAML files and
// converts them into pipeline models.
package defs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Def is the YAML surface of one pipeline definition.
type Def struct {
	Name        string            `yaml:"name"        validate:"required,min=3"`
	Slug        string            `yaml:"slug,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Repository  RepositoryDef     `yaml:"repository"  validate:"required"`
	On          TriggersDef       `yaml:"on"`
	Matrix      MatrixDef         `yaml:"matrix,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Steps       []StepDef         `yaml:"steps"       validate:"required,min=1,dive"`
}

type RepositoryDef struct {
	URL           string `yaml:"url" validate:"required"`
	DefaultBranch string `yaml:"default_branch,omitempty"`
}

// TriggersDef mirrors the "on:" block. Each present key enables one
// trigger kind.
type TriggersDef struct {
	Push        *PushDef        `yaml:"push,omitempty"`
	PullRequest *PullRequestDef `yaml:"pull_request,omitempty"`
	Schedule    *ScheduleDef    `yaml:"schedule,omitempty"`
	Manual      *ManualDef      `yaml:"manual,omitempty"`
}

type PushDef struct {
	Branches []string `yaml:"branches,omitempty"`
}

type PullRequestDef struct {
	Actions []string `yaml:"actions,omitempty"`
}

type ScheduleDef struct {
	Cron string `yaml:"cron" validate:"required"`
}

type ManualDef struct{}

type MatrixDef struct {
	FailFast bool                `yaml:"fail_fast"`
	Axes     map[string][]string `yaml:"axes,omitempty"`
}

type StepDef struct {
	UID    string         `yaml:"uid,omitempty"`
	Name   string         `yaml:"name,omitempty"`
	Action string         `yaml:"action" validate:"required"`
	With   map[string]any `yaml:"with,omitempty"`
}

// Parse decodes one definition. Unknown fields are rejected so typos in
// definition files fail loudly instead of being silently dropped.
func Parse(data []byte) (*Def, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var def Def
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline definition: %w", err)
	}

	return &def, nil
}

// Load reads and parses a single definition file.
func Load(path string) (*Def, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return def, nil
}

// LoadDir loads every .yaml/.yml definition directly under dir, sorted by
// file name.
func LoadDir(dir string) ([]*Def, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	defs := make([]*Def, 0, len(names))

	for _, name := range names {
		def, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	return defs, nil
}
