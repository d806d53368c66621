package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// State of a submitted task.
type State string

const (
	Submitted State = "SUBMITTED"
	Completed State = "COMPLETED"
	Cancelled State = "CANCELLED"
	Failed    State = "FAILED"
)

// Task is the handle of one export submission.
type Task struct {
	ID        string   `csv:"id"`
	Name      string   `csv:"name"`
	Region    string   `csv:"region"`
	Window    string   `csv:"window"`
	Sensor    string   `csv:"sensor"`
	Product   string   `csv:"product"`
	Location  Location `csv:"location"`
	Path      string   `csv:"path"`
	State     State    `csv:"state"`
	Submitted string   `csv:"submitted"`
}

// NewTask stamps a request with a fresh ID.
func NewTask(req Request, path string, state State) Task {
	return Task{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Region:    req.Labels.Region,
		Window:    req.Labels.Window,
		Sensor:    req.Labels.Sensor,
		Product:   req.Labels.Product,
		Location:  req.Location,
		Path:      path,
		State:     state,
		Submitted: time.Now().UTC().Format(time.RFC3339),
	}
}

// Filter selects tasks to cancel.
type Filter func(Task) bool

// NameGlob matches task names against a path.Match pattern; an empty
// pattern matches everything.
func NameGlob(pattern string) Filter {
	return func(t Task) bool {
		if pattern == "" {
			return true
		}
		ok, _ := path.Match(pattern, t.Name)
		return ok
	}
}

// TaskList is the append-only record of a run's submissions. Only the
// driver goroutine writes to it.
type TaskList struct {
	tasks []Task
}

func (l *TaskList) Append(t ...Task) {
	l.tasks = append(l.tasks, t...)
}

func (l *TaskList) Len() int { return len(l.tasks) }

// Tasks returns a copy of the list.
func (l *TaskList) Tasks() []Task {
	return append([]Task(nil), l.tasks...)
}

// Cancel cancels every live task matching filter and returns how many were
// cancelled. Failures do not stop the remaining cancellations.
func (l *TaskList) Cancel(ctx context.Context, ex Exporter, filter Filter) (int, error) {
	var errs []error
	n := 0
	for i, t := range l.tasks {
		if t.State == Cancelled || t.State == Failed || !filter(t) {
			continue
		}
		if err := ex.Cancel(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.Name, err))
			continue
		}
		l.tasks[i].State = Cancelled
		n++
	}
	return n, errors.Join(errs...)
}

// WriteManifest writes the list as CSV.
func (l *TaskList) WriteManifest(w io.Writer) error {
	tasks := l.Tasks()
	return gocsv.Marshal(&tasks, w)
}

// ReadManifest loads a list written by WriteManifest.
func ReadManifest(r io.Reader) (*TaskList, error) {
	var tasks []Task
	if err := gocsv.Unmarshal(r, &tasks); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return &TaskList{tasks: tasks}, nil
}
