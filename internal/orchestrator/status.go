package orchestrator

import "time"

// Status is the lifecycle state of a repository indexing operation.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusInProgress Status = "InProgress"
	StatusRefreshing Status = "Refreshing"
	StatusCompleted  Status = "Completed"
	StatusError      Status = "Error"
	StatusCancelled  Status = "Cancelled"
)

// terminal reports whether a status permits starting a new operation.
func (s Status) terminal() bool {
	switch s {
	case StatusInProgress, StatusRefreshing:
		return false
	default:
		return true
	}
}

// IndexStatus is the progress view of one repository.
type IndexStatus struct {
	RepositoryID        string    `json:"repositoryId"`
	Status              Status    `json:"status"`
	ProgressPercentage  float64   `json:"progressPercentage"`
	TotalFiles          int       `json:"totalFiles"`
	ProcessedFiles      int       `json:"processedFiles"`
	SkippedFiles        int       `json:"skippedFiles"`
	TotalDocuments      int       `json:"totalDocuments"`
	StartedAt           time.Time `json:"startedAt,omitempty"`
	LastIndexed         time.Time `json:"lastIndexed,omitempty"`
	EstimatedCompletion time.Time `json:"estimatedCompletion,omitempty"`
	Error               string    `json:"error,omitempty"`
}

// statusTracker owns the status map. All access is serialized through a
// single goroutine; callers submit closures and wait for completion, so no
// lock ordering or map races are possible.
type statusTracker struct {
	ops  chan func(map[string]*IndexStatus)
	quit chan struct{}
}

func newStatusTracker() *statusTracker {
	t := &statusTracker{
		ops:  make(chan func(map[string]*IndexStatus)),
		quit: make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *statusTracker) run() {
	statuses := make(map[string]*IndexStatus)
	for {
		select {
		case op := <-t.ops:
			op(statuses)
		case <-t.quit:
			return
		}
	}
}

// do runs op on the tracker goroutine and waits for it.
func (t *statusTracker) do(op func(map[string]*IndexStatus)) {
	done := make(chan struct{})
	select {
	case t.ops <- func(m map[string]*IndexStatus) {
		op(m)
		close(done)
	}:
		<-done
	case <-t.quit:
	}
}

// get returns a copy of the repository's status, or nil if none exists.
func (t *statusTracker) get(repositoryID string) *IndexStatus {
	var out *IndexStatus
	t.do(func(m map[string]*IndexStatus) {
		if s, ok := m[repositoryID]; ok {
			copied := *s
			out = &copied
		}
	})
	return out
}

// tryStart transitions the repository into the given active status. If an
// operation is already running it returns false with a copy of the live
// status instead.
func (t *statusTracker) tryStart(repositoryID string, status Status, now time.Time) (*IndexStatus, bool) {
	var (
		out     *IndexStatus
		started bool
	)
	t.do(func(m map[string]*IndexStatus) {
		if existing, ok := m[repositoryID]; ok && !existing.Status.terminal() {
			copied := *existing
			out = &copied
			return
		}
		fresh := &IndexStatus{
			RepositoryID: repositoryID,
			Status:       status,
			StartedAt:    now,
		}
		m[repositoryID] = fresh
		copied := *fresh
		out = &copied
		started = true
	})
	return out, started
}

// update mutates the repository's status in place and returns a copy.
func (t *statusTracker) update(repositoryID string, mutate func(*IndexStatus)) *IndexStatus {
	var out *IndexStatus
	t.do(func(m map[string]*IndexStatus) {
		s, ok := m[repositoryID]
		if !ok {
			s = &IndexStatus{RepositoryID: repositoryID, Status: StatusNotStarted}
			m[repositoryID] = s
		}
		mutate(s)
		copied := *s
		out = &copied
	})
	return out
}

// remove drops the repository's status.
func (t *statusTracker) remove(repositoryID string) {
	t.do(func(m map[string]*IndexStatus) {
		delete(m, repositoryID)
	})
}

// close stops the tracker goroutine.
func (t *statusTracker) close() {
	close(t.quit)
}
