package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Kickoff status values
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Kickoff is one full crew run. Inputs are stored as a JSON object.
type Kickoff struct {
	ID         string       `db:"id"`
	Mode       string       `db:"mode"` // run, train, test, replay
	Inputs     string       `db:"inputs"`
	Status     string       `db:"status"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

// InputsMap decodes the stored inputs; a malformed value yields an empty map.
func (k *Kickoff) InputsMap() map[string]string {
	out := map[string]string{}
	_ = json.Unmarshal([]byte(k.Inputs), &out)
	return out
}

// EncodeInputs renders inputs for storage.
func EncodeInputs(inputs map[string]string) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// TaskOutput is the persisted result of one task inside a kickoff. TaskID
// is what `replay <task_id>` takes.
type TaskOutput struct {
	TaskID      string    `db:"task_id"`
	KickoffID   string    `db:"kickoff_id"`
	Position    int       `db:"position"`
	TaskName    string    `db:"task_name"`
	Agent       string    `db:"agent"`
	Description string    `db:"description"`
	Output      string    `db:"output"`
	OutputFile  string    `db:"output_file"`
	StartedAt   time.Time `db:"started_at"`
	CompletedAt time.Time `db:"completed_at"`
}

// Duration is the task's wall-clock execution time.
func (t *TaskOutput) Duration() time.Duration {
	return t.CompletedAt.Sub(t.StartedAt)
}

// Memory is a short note an agent carries between runs when crew memory
// is enabled.
type Memory struct {
	ID        int64     `db:"id"`
	Agent     string    `db:"agent"`
	TaskName  string    `db:"task_name"`
	KickoffID string    `db:"kickoff_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// Store persists kickoffs, task outputs and agent memory.
type Store interface {
	CreateKickoff(ctx context.Context, k *Kickoff) error
	FinishKickoff(ctx context.Context, id, status string) error
	LatestKickoff(ctx context.Context) (*Kickoff, error)

	SaveTaskOutput(ctx context.Context, out *TaskOutput) error
	TaskOutputs(ctx context.Context, kickoffID string) ([]*TaskOutput, error)
	FindTask(ctx context.Context, taskID string) (*TaskOutput, error)

	SaveMemory(ctx context.Context, m *Memory) error
	RecentMemories(ctx context.Context, agent string, limit int) ([]*Memory, error)

	Close() error
}
