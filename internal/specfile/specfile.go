// Package specfile loads the read-only workflow definition inputs: the
// spec record describing the unit of work and the todo record listing the
// ordered tasks. Files may be YAML or JSON (YAML is a superset, so one
// decoder serves both).
package specfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec is the immutable description of the work. Loaded once, never
// mutated by the engine.
type Spec struct {
	ID       string       `yaml:"id" json:"id"`
	Title    string       `yaml:"title" json:"title"`
	Goals    []string     `yaml:"goals" json:"goals"`
	NonGoals []string     `yaml:"nonGoals" json:"nonGoals"`
	Req      Requirements `yaml:"req" json:"req"`
	Accept   []string     `yaml:"accept" json:"accept"`
	Assume   []string     `yaml:"assume" json:"assume"`
}

// Requirements groups the spec's requirement lists.
type Requirements struct {
	API      []string `yaml:"api" json:"api"`
	Behavior []string `yaml:"behavior" json:"behavior"`
	Obs      []string `yaml:"obs" json:"obs"`
}

// Todo is the ordered work list. Task ordering is significant and is never
// reshuffled.
type Todo struct {
	ID    string   `yaml:"id" json:"id"`
	TDD   bool     `yaml:"tdd" json:"tdd"`
	DoD   []string `yaml:"dod" json:"dod"`
	Tasks []Task   `yaml:"tasks" json:"tasks"`
}

// Task is one ordered work item.
type Task struct {
	ID     string `yaml:"id" json:"id"`
	Do     string `yaml:"do" json:"do"`
	Verify string `yaml:"verify" json:"verify"`
}

// LoadSpec reads and parses a spec record from path.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse spec file %s: %w", path, err)
	}
	if spec.ID == "" {
		return nil, fmt.Errorf("spec file %s: missing id", path)
	}
	return &spec, nil
}

// LoadTodo reads and parses a todo record from path.
func LoadTodo(path string) (*Todo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read todo file: %w", err)
	}

	var todo Todo
	if err := yaml.Unmarshal(data, &todo); err != nil {
		return nil, fmt.Errorf("failed to parse todo file %s: %w", path, err)
	}
	if todo.ID == "" {
		return nil, fmt.Errorf("todo file %s: missing id", path)
	}

	seen := make(map[string]bool, len(todo.Tasks))
	for i, task := range todo.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("todo file %s: tasks[%d] missing id", path, i)
		}
		if strings.TrimSpace(task.Do) == "" {
			return nil, fmt.Errorf("todo file %s: task %s missing do instruction", path, task.ID)
		}
		if seen[task.ID] {
			return nil, fmt.Errorf("todo file %s: duplicate task id %s", path, task.ID)
		}
		seen[task.ID] = true
	}
	return &todo, nil
}
