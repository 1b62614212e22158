// Package report drives the research engine across every product in a
// job, tolerates partial failure, and assembles the final spreadsheet.
package report

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// ProgressFunc receives progress events for one report.
type ProgressFunc func(model.ProgressEvent)

// ProgressRegistry fans progress events out to subscribers keyed by
// report ID. Register, Unregister, and Notify are its only operations
// and are serialized; percent is clamped monotonically non-decreasing
// per report. A panicking subscriber loses that one delivery, the job
// and the other subscribers are unaffected.
type ProgressRegistry struct {
	mu      sync.Mutex
	nextID  int
	subs    map[string]map[int]ProgressFunc
	highest map[string]int
	// order serializes watermark stamping and delivery per report so
	// concurrent Notify calls cannot reach a subscriber out of order.
	order map[string]*sync.Mutex
}

// NewProgressRegistry creates an empty registry.
func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{
		subs:    make(map[string]map[int]ProgressFunc),
		highest: make(map[string]int),
		order:   make(map[string]*sync.Mutex),
	}
}

// Register subscribes fn to a report's events and returns a handle for
// UnregisterFunc. Multiple subscribers per report are allowed.
func (r *ProgressRegistry) Register(reportID string, fn ProgressFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	if r.subs[reportID] == nil {
		r.subs[reportID] = make(map[int]ProgressFunc)
	}
	r.subs[reportID][r.nextID] = fn
	return r.nextID
}

// UnregisterFunc removes a single subscriber by its Register handle.
func (r *ProgressRegistry) UnregisterFunc(reportID string, handle int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.subs[reportID]; ok {
		delete(subs, handle)
		if len(subs) == 0 {
			delete(r.subs, reportID)
		}
	}
}

// Unregister removes every subscriber for a report and forgets its
// progress watermark. Called when a report reaches a terminal state.
func (r *ProgressRegistry) Unregister(reportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, reportID)
	delete(r.highest, reportID)
	delete(r.order, reportID)
}

// Notify delivers an event to every current subscriber for its report.
// Notifies for the same report are serialized end to end, and
// PercentComplete below the report's high watermark is raised to it, so
// events observed by subscribers never run backwards even when research
// workers report completion concurrently.
func (r *ProgressRegistry) Notify(event model.ProgressEvent) {
	r.mu.Lock()
	lock := r.order[event.ReportID]
	if lock == nil {
		lock = &sync.Mutex{}
		r.order[event.ReportID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if event.PercentComplete < r.highest[event.ReportID] {
		event.PercentComplete = r.highest[event.ReportID]
	} else {
		r.highest[event.ReportID] = event.PercentComplete
	}
	fns := make([]ProgressFunc, 0, len(r.subs[event.ReportID]))
	for _, fn := range r.subs[event.ReportID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		deliver(fn, event)
	}
}

func deliver(fn ProgressFunc, event model.ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Warn("progress subscriber panicked",
				zap.String("report_id", event.ReportID),
				zap.Any("panic", rec))
		}
	}()
	fn(event)
}
