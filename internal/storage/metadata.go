package storage

import (
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"time"
)

const MetadataFile = "metadata.json"

// RunMetadata describes how and where a run was produced.
type RunMetadata struct {
	ID              string             `json:"id" yaml:"id"`
	Experiment      string             `json:"experiment" yaml:"experiment"`
	Start           time.Time          `json:"start_time" yaml:"start_time"`
	End             time.Time          `json:"end_time" yaml:"end_time"`
	DurationMinutes float64            `json:"duration_minutes" yaml:"duration_minutes"`
	GitCommit       string             `json:"git_commit" yaml:"git_commit"`
	Platform        string             `json:"platform" yaml:"platform"`
	User            string             `json:"user" yaml:"user"`
	Hostname        string             `json:"hostname" yaml:"hostname"`
	WorkingDir      string             `json:"working_dir" yaml:"working_dir"`
	Command         string             `json:"command" yaml:"command"`
	Metrics         map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// NewMetadata fills in the environment fields for a run.
func NewMetadata(run *Run, experiment string) *RunMetadata {
	meta := &RunMetadata{
		ID:         run.ID,
		Experiment: experiment,
		Start:      run.Started,
		GitCommit:  GitCommit(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Command:    strings.Join(os.Args, " "),
		Metrics:    map[string]float64{},
	}
	if u, err := user.Current(); err == nil {
		meta.User = u.Username
	}
	meta.Hostname, _ = os.Hostname()
	meta.WorkingDir, _ = os.Getwd()
	return meta
}

// Finish stamps the end time and duration.
func (m *RunMetadata) Finish(end time.Time) {
	m.End = end
	m.DurationMinutes = end.Sub(m.Start).Minutes()
}

// GitCommit returns HEAD of the working directory's repository or "unknown".
func GitCommit() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// SaveMetadata writes metadata.json and a YAML copy under name (if set).
func (r *Run) SaveMetadata(meta *RunMetadata, yamlName string) error {
	if err := r.WriteJSON(MetadataFile, meta); err != nil {
		return err
	}
	if yamlName == "" {
		return nil
	}
	return r.WriteYAML(yamlName, meta)
}
