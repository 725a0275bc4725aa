package runs

import "github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"

const subscriberBuffer = 16

// Subscribe streams state changes of an active run. The channel is closed
// when the run finishes or cancel is called; it is returned closed for runs
// that are not executing.
func (e *Executor) Subscribe(runID string) (<-chan models.EvaluationRun, func()) {
	ch := make(chan models.EvaluationRun, subscriberBuffer)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active[runID] {
		close(ch)
		return ch, func() {}
	}

	id := e.nextSub
	e.nextSub++
	if e.subs[runID] == nil {
		e.subs[runID] = make(map[int]chan models.EvaluationRun)
	}
	e.subs[runID][id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[runID][id]; ok {
			delete(e.subs[runID], id)
			close(c)
		}
	}
	return ch, cancel
}

// publish never blocks; a slow subscriber loses its oldest pending update.
func (e *Executor) publish(run models.EvaluationRun) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.subs[run.ID] {
		select {
		case ch <- run:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- run
		}
	}
}

func (e *Executor) release(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.subs[runID] {
		close(ch)
	}
	delete(e.subs, runID)
	delete(e.active, runID)
}
