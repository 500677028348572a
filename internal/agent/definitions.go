// Package agent defines the crew's agents and tasks and runs a single agent
// on a single task, with or without tools.
package agent

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/agents.yaml config/tasks.yaml
var defaultConfig embed.FS

// AgentSpec describes one crew member.
type AgentSpec struct {
	Name             string        `yaml:"-"`
	Role             string        `yaml:"role"`
	Goal             string        `yaml:"goal"`
	Backstory        string        `yaml:"backstory"`
	Tools            []string      `yaml:"tools"`
	MaxIter          int           `yaml:"max_iter"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	AllowDelegation  bool          `yaml:"allow_delegation"`
}

// TaskSpec describes one step of the sequential process. Context names the
// earlier tasks whose outputs are handed to this one.
type TaskSpec struct {
	Name           string   `yaml:"-"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Agent          string   `yaml:"agent"`
	Context        []string `yaml:"context"`
	OutputFile     string   `yaml:"output_file"`
}

// Definitions holds agents by name and tasks in execution order.
type Definitions struct {
	Agents map[string]AgentSpec
	Tasks  []TaskSpec
}

// LoadDefinitions reads agent and task YAML, falling back to the embedded
// defaults for any path left empty.
func LoadDefinitions(agentsPath, tasksPath string) (*Definitions, error) {
	agentsData, err := readConfig(agentsPath, "config/agents.yaml")
	if err != nil {
		return nil, err
	}
	tasksData, err := readConfig(tasksPath, "config/tasks.yaml")
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(agentsData, tasksData)
}

func readConfig(path, embedded string) ([]byte, error) {
	if path == "" {
		return defaultConfig.ReadFile(embedded)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// ParseDefinitions decodes agents and tasks, keeping task order as written.
func ParseDefinitions(agentsData, tasksData []byte) (*Definitions, error) {
	defs := &Definitions{Agents: map[string]AgentSpec{}}

	err := decodeOrdered(agentsData, func(name string, node *yaml.Node) error {
		var a AgentSpec
		if err := node.Decode(&a); err != nil {
			return err
		}
		a.Name = name
		a.Role = strings.TrimSpace(a.Role)
		if a.MaxIter <= 0 {
			a.MaxIter = 1
		}
		defs.Agents[name] = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse agents: %w", err)
	}

	err = decodeOrdered(tasksData, func(name string, node *yaml.Node) error {
		var t TaskSpec
		if err := node.Decode(&t); err != nil {
			return err
		}
		t.Name = name
		defs.Tasks = append(defs.Tasks, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}

	if err := defs.validate(); err != nil {
		return nil, err
	}
	return defs, nil
}

func decodeOrdered(data []byte, fn func(name string, node *yaml.Node) error) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of names to definitions", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if err := fn(root.Content[i].Value, root.Content[i+1]); err != nil {
			return fmt.Errorf("%s: %w", root.Content[i].Value, err)
		}
	}
	return nil
}

// validate checks that every task names a known agent and only takes
// context from tasks that run before it.
func (d *Definitions) validate() error {
	if len(d.Tasks) == 0 {
		return fmt.Errorf("no tasks defined")
	}
	seen := map[string]bool{}
	for _, t := range d.Tasks {
		if _, ok := d.Agents[t.Agent]; !ok {
			return fmt.Errorf("task %s: unknown agent %q", t.Name, t.Agent)
		}
		for _, c := range t.Context {
			if !seen[c] {
				return fmt.Errorf("task %s: context task %q must run earlier", t.Name, c)
			}
		}
		seen[t.Name] = true
	}
	return nil
}

// Task returns the named task and its position in execution order.
func (d *Definitions) Task(name string) (TaskSpec, int, bool) {
	for i, t := range d.Tasks {
		if t.Name == name {
			return t, i, true
		}
	}
	return TaskSpec{}, -1, false
}

// Interpolate returns a copy with {key} placeholders in every prompt field
// replaced from inputs. Unknown placeholders are left as written.
func (d *Definitions) Interpolate(inputs map[string]string) *Definitions {
	pairs := make([]string, 0, len(inputs)*2)
	for k, v := range inputs {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := &Definitions{Agents: make(map[string]AgentSpec, len(d.Agents))}
	for name, a := range d.Agents {
		a.Role = r.Replace(a.Role)
		a.Goal = r.Replace(a.Goal)
		a.Backstory = r.Replace(a.Backstory)
		out.Agents[name] = a
	}
	for _, t := range d.Tasks {
		t.Description = r.Replace(t.Description)
		t.ExpectedOutput = r.Replace(t.ExpectedOutput)
		t.Context = append([]string(nil), t.Context...)
		out.Tasks = append(out.Tasks, t)
	}
	return out
}
