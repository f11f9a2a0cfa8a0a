package index

import (
	"sync"
	"time"
)

// JobKind identifies which long-running job a state object tracks.
type JobKind string

const (
	JobSync    JobKind = "sync"
	JobProcess JobKind = "process"
)

// JobState is the lifecycle state of a background job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobStopped   JobState = "stopped"
)

// maxRecentErrors bounds the error messages retained in job status.
const maxRecentErrors = 10

// Job tracks the state of one background job kind. It is owned by the
// Synchronizer or Pipeline instance and exposed to callers only through the
// read-only Status snapshot. Begin performs a compare-and-set so a second
// start request is rejected rather than queued.
type Job struct {
	mu sync.Mutex

	kind  JobKind
	state JobState
	runID string

	startedAt time.Time
	endedAt   time.Time

	total     int
	processed int
	failed    int
	skipped   int
	current   string

	recentErrors []string

	// offset is the resumption state of a paused run: a page token for
	// sync, the type filter for processing.
	offset string

	stopRequested  bool
	pauseRequested bool
}

// NewJob creates an idle job tracker for the given kind.
func NewJob(kind JobKind) *Job {
	return &Job{kind: kind, state: JobIdle}
}

// JobStatus is a read-only snapshot of a Job.
type JobStatus struct {
	Kind         JobKind   `json:"kind"`
	State        JobState  `json:"state"`
	RunID        string    `json:"run_id,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	CurrentFile  string    `json:"current_file,omitempty"`
	RecentErrors []string  `json:"recent_errors,omitempty"`
}

// Begin transitions the job to running. Returns ErrJobActive if a run is
// already active, running or paused: a paused run must be resumed or
// stopped, not restarted from scratch.
func (j *Job) Begin(runID string, now time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == JobRunning || j.state == JobPaused {
		return ErrJobActive
	}

	j.state = JobRunning
	j.runID = runID
	j.startedAt = now
	j.endedAt = time.Time{}
	j.total = 0
	j.processed = 0
	j.failed = 0
	j.skipped = 0
	j.current = ""
	j.recentErrors = nil
	j.offset = ""
	j.stopRequested = false
	j.pauseRequested = false
	return nil
}

// Resume transitions a paused job back to running and returns the saved
// resumption offset. Counters carry over from the paused run.
func (j *Job) Resume(now time.Time) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state != JobPaused {
		return "", ErrJobActive
	}

	j.state = JobRunning
	j.startedAt = now
	j.stopRequested = false
	j.pauseRequested = false
	return j.offset, nil
}

// Finish ends the run. err != nil marks the job failed; otherwise the final
// state reflects any stop or pause request observed during the run.
func (j *Job) Finish(err error, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case err != nil:
		j.state = JobFailed
		j.appendError(err.Error())
	case j.pauseRequested:
		j.state = JobPaused
	case j.stopRequested:
		j.state = JobStopped
	default:
		j.state = JobCompleted
	}
	j.current = ""
	j.endedAt = now
}

// RequestStop asks the run to stop at the next checkpoint between files or
// pages, never preemptively mid-file.
func (j *Job) RequestStop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopRequested = true
}

// RequestPause asks the run to pause at the next checkpoint, preserving a
// resumption offset.
func (j *Job) RequestPause() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == JobRunning {
		j.pauseRequested = true
	}
}

// Interrupted reports whether a stop or pause has been requested. Runs call
// this between units of work.
func (j *Job) Interrupted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopRequested || j.pauseRequested
}

// SaveOffset records the resumption point for a pause.
func (j *Job) SaveOffset(offset string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.offset = offset
}

// SetTotal records the number of work units in the run.
func (j *Job) SetTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.total = n
}

// StartFile records the unit of work currently in flight.
func (j *Job) StartFile(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.current = name
}

// FileDone records the outcome of one unit of work.
func (j *Job) FileDone(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.failed++
		j.appendError(err.Error())
		return
	}
	j.processed++
}

// FileSkipped records a unit of work that was deliberately not processed.
func (j *Job) FileSkipped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.skipped++
}

// Status returns a read-only snapshot of the job.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	errs := make([]string, len(j.recentErrors))
	copy(errs, j.recentErrors)

	return JobStatus{
		Kind:         j.kind,
		State:        j.state,
		RunID:        j.runID,
		StartedAt:    j.startedAt,
		EndedAt:      j.endedAt,
		Total:        j.total,
		Processed:    j.processed,
		Failed:       j.failed,
		Skipped:      j.skipped,
		CurrentFile:  j.current,
		RecentErrors: errs,
	}
}

// appendError retains the most recent error messages. Caller holds j.mu.
func (j *Job) appendError(msg string) {
	j.recentErrors = append(j.recentErrors, msg)
	if len(j.recentErrors) > maxRecentErrors {
		j.recentErrors = j.recentErrors[len(j.recentErrors)-maxRecentErrors:]
	}
}
