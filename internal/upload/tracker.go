package upload

import (
	"errors"
	"time"

	"github.com/Lumosity23/studyRAG-sub001/internal/models"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"go.uber.org/zap"
)

// track starts following taskID unless it is already followed.
func (o *Orchestrator) track(taskID string) {
	o.mu.Lock()
	if o.closed || o.trackers[taskID] != nil {
		o.mu.Unlock()
		return
	}
	t := &tracker{kick: make(chan struct{}, 1)}
	o.trackers[taskID] = t
	o.wg.Add(1)
	o.mu.Unlock()

	go o.follow(taskID, t)
}

// follow waits for push updates; once none has arrived for the grace period
// it switches to polling until the record is terminal.
func (o *Orchestrator) follow(taskID string, t *tracker) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.trackers, taskID)
		o.mu.Unlock()
	}()

	grace := time.NewTimer(o.grace)
	defer grace.Stop()
	for {
		if o.finished(taskID) {
			return
		}
		select {
		case <-o.ctx.Done():
			return
		case <-t.kick:
			grace.Reset(o.grace)
		case <-grace.C:
			o.logger.Debug("no push update, polling", zap.String("task_id", taskID), zap.Duration("grace", o.grace))
			o.poll(taskID)
			return
		}
	}
}

func (o *Orchestrator) poll(taskID string) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		if o.pollOnce(taskID) {
			return
		}
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce fetches the task status once and reports whether polling should stop.
func (o *Orchestrator) pollOnce(taskID string) bool {
	if o.finished(taskID) {
		return true
	}
	status, err := o.backend.DocumentStatus(o.ctx, taskID)
	if err != nil {
		if o.ctx.Err() != nil {
			return true
		}
		var te *models.TransportError
		if errors.As(err, &te) && !te.Retryable() {
			o.logger.Warn("status polling stopped", zap.String("task_id", taskID), zap.Error(err))
			return true
		}
		o.logger.Debug("status poll failed", zap.String("task_id", taskID), zap.Error(err))
		return false
	}
	u := status.Update()
	u.TaskID = taskID
	rec, _, err := o.apply(u)
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	return rec.Status.Terminal()
}

func (o *Orchestrator) finished(taskID string) bool {
	rec, ok := o.store.Upload(taskID)
	return !ok || rec.Status.Terminal()
}

// Tracking returns the number of tasks currently followed.
func (o *Orchestrator) Tracking() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trackers)
}
