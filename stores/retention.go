package stores

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionSchedule runs the retention sweep once a day.
const DefaultRetentionSchedule = "@daily"

// Retention periodically deletes idle threads and old execution traces.
type Retention struct {
	Messages MessageStore
	Traces   TraceStore // optional
	MaxAge   time.Duration
	Now      func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
	entryID   cron.EntryID
}

// NewRetention creates a retention job; maxAge must be positive.
func NewRetention(messages MessageStore, traces TraceStore, maxAge time.Duration) (*Retention, error) {
	if messages == nil {
		return nil, fmt.Errorf("message store is nil")
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	return &Retention{Messages: messages, Traces: traces, MaxAge: maxAge, Now: time.Now}, nil
}

// Sweep deletes conversations idle for longer than MaxAge together with their
// traces, then drops traces older than MaxAge. It returns the pruned thread ids.
func (r *Retention) Sweep() ([]string, error) {
	cutoff := r.Now().Add(-r.MaxAge)

	pruned, err := r.Messages.PruneInactive(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune conversations: %w", err)
	}

	if r.Traces != nil {
		for _, id := range pruned {
			if err := r.Traces.DeleteTracesByConversation(id); err != nil {
				log.Printf("[RETENTION] failed to delete traces of %s: %v", id, err)
			}
		}
		n, err := r.Traces.DeleteTracesBefore(cutoff)
		if err != nil {
			return pruned, fmt.Errorf("failed to prune traces: %w", err)
		}
		if n > 0 {
			log.Printf("[RETENTION] deleted %d traces older than %s", n, cutoff.Format(time.RFC3339))
		}
	}

	if len(pruned) > 0 {
		log.Printf("[RETENTION] pruned %d idle conversations", len(pruned))
	}
	return pruned, nil
}

// Start schedules Sweep using a standard cron expression or descriptor
// such as "@daily" or "0 3 * * *".
func (r *Retention) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return fmt.Errorf("retention already started")
	}

	c := cron.New()
	id, err := c.AddFunc(schedule, func() {
		if _, err := r.Sweep(); err != nil {
			log.Printf("[RETENTION] sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention: %w", err)
	}
	c.Start()
	r.scheduler = c
	r.entryID = id
	log.Printf("[RETENTION] scheduled %q, max age %s", schedule, r.MaxAge)
	return nil
}

// NextRun reports when the next sweep is due; zero if not started.
func (r *Retention) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return time.Time{}
	}
	return r.scheduler.Entry(r.entryID).Next
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	c := r.scheduler
	r.scheduler = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
