package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"loopctl/internal/memory"
)

// taskFileEntry is one task as authored in the project's tasks file
// (spec §6.3: "a tasks file used as the canonical backlog source").
type taskFileEntry struct {
	ID                 string   `yaml:"id"`
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description"`
	Priority           string   `yaml:"priority"`
	Phase              string   `yaml:"phase"`
	EstimateHours      float64  `yaml:"estimate_hours"`
	AcceptanceCriteria []string `yaml:"acceptance_criteria"`
	Dependencies       []string `yaml:"dependencies"`
}

type taskFile struct {
	Tasks []taskFileEntry `yaml:"tasks"`
}

// seedTasksFromFile loads a project's tasks file (if present; a missing
// file is not an error, matching config.Load's tolerance) and creates
// any task not already known to the Memory Store. Existing tasks are
// left untouched so re-running start never clobbers in-flight state.
func seedTasksFromFile(sys *system, path string) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var tf taskFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return err
	}

	existing, err := sys.tasksMgr.List("")
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	for _, e := range tf.Tasks {
		if e.ID != "" && known[e.ID] {
			continue
		}
		priority := memory.Priority(e.Priority)
		if priority == "" {
			priority = memory.PriorityMedium
		}
		_, err := sys.tasksMgr.Create(&memory.Task{
			ID:                 e.ID,
			Title:              e.Title,
			Description:        e.Description,
			Priority:           priority,
			Phase:              e.Phase,
			EstimateHours:      e.EstimateHours,
			AcceptanceCriteria: e.AcceptanceCriteria,
			Dependencies:       e.Dependencies,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
