package models

// Task names routed to workers.
const (
	TaskProcessURL  = "process_url_task"
	TaskProcessFile = "process_file_task"
)

// Task is the unit of work handed from submission to a worker.
type Task struct {
	Name   string    `json:"task"`
	JobID  string    `json:"job_id"`
	Source SourceRef `json:"source"`
}

// TaskNameFor returns the task routed for a source kind.
func TaskNameFor(kind SourceKind) string {
	if kind == SourceWeb {
		return TaskProcessURL
	}
	return TaskProcessFile
}

// NewTask builds the task for a job from the source reference stored on it.
func NewTask(job *IngestionJob) Task {
	ref := job.Ref()
	return Task{Name: TaskNameFor(ref.Kind), JobID: job.ID, Source: ref}
}
