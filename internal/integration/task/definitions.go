package task

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefinitionsFileName is the per-project tasks file looked up in the
// folder root.
const DefinitionsFileName = "swiftbridge.yaml"

// definitionsFile is the on-disk structure of a tasks file.
type definitionsFile struct {
	Version int                       `yaml:"version"`
	Tasks   map[string]taskDefinition `yaml:"tasks"`
}

// taskDefinition is a single task entry in a tasks file.
type taskDefinition struct {
	Label string            `yaml:"label"`
	Kind  string            `yaml:"kind"`
	Args  []string          `yaml:"args"`
	Cwd   string            `yaml:"cwd"`
	Env   map[string]string `yaml:"env"`
}

// LoadDefinitions reads the tasks file at path. A missing file yields
// no tasks and no error; a malformed file is an error. Tasks are
// returned sorted by name for stable ordering.
func LoadDefinitions(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading tasks file %s: %w", path, err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tasks file %s: %w", path, err)
	}

	if len(file.Tasks) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(file.Tasks))
	for name := range file.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		def := file.Tasks[name]
		tasks = append(tasks, Task{
			Name:  name,
			Label: def.Label,
			Kind:  parseKind(def.Kind),
			Args:  def.Args,
			Cwd:   def.Cwd,
			Env:   def.Env,
		})
	}
	return tasks, nil
}

// parseKind maps a tasks-file kind string to a Kind.
// Unknown kinds become custom so the task still runs verbatim.
func parseKind(s string) Kind {
	switch s {
	case "build":
		return KindBuild
	case "test":
		return KindTest
	case "run":
		return KindRun
	default:
		return KindCustom
	}
}
