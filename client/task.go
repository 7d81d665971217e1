package client

import (
	"context"
	"time"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
)

type task struct {
	cancel context.CancelFunc
	runs   int
}

// schedule repeats req on a background timer. Each run is a full
// resolve and attempt sequence with its own retries. The handle resolves
// with the last response once the task ends.
func (c *Client) schedule(ctx context.Context, req *Request, cb Callback) (*Handle, error) {
	opts := *req.Task
	if opts.Interval <= 0 && opts.RepeatTimes != 1 {
		return nil, wqerrors.Configuration("client: a repeating task needs a positive interval")
	}
	if opts.DueTime < 0 || opts.RepeatTimes < 0 {
		return nil, wqerrors.Configuration("client: task due time and repeat times must not be negative")
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel}

	c.tasksMu.Lock()
	if _, exists := c.tasks[req]; exists {
		c.tasksMu.Unlock()
		cancel()
		return nil, wqerrors.Configuration("client: request is already scheduled")
	}
	c.tasks[req] = t
	c.tasksMu.Unlock()

	h := newHandle()
	go c.runTask(taskCtx, req, t, opts, cb, h)
	return h, nil
}

func (c *Client) runTask(ctx context.Context, req *Request, t *task, opts TaskOptions, cb Callback, h *Handle) {
	var last *Response
	defer func() {
		c.tasksMu.Lock()
		if c.tasks[req] == t {
			delete(c.tasks, req)
		}
		c.tasksMu.Unlock()
		t.cancel()
		h.resolve(last)
	}()

	timer := time.NewTimer(opts.DueTime)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		started := time.Now()
		resp, err := c.runOnce(ctx, req)
		if ctx.Err() != nil && resp.Err != nil {
			// canceled mid-run
			return
		}
		last = resp
		t.runs++
		cb(resp)

		if err != nil || (resp.Err != nil && !opts.ContinueOnError) {
			c.log.Warn("scheduled request stopped after an error", logger.Fields(
				logger.FieldURL, resp.RequestURL,
				"runs", t.runs,
			))
			return
		}
		if opts.RepeatTimes > 0 && t.runs >= opts.RepeatTimes {
			return
		}
		timer.Reset(time.Until(started.Add(opts.Interval)))
	}
}

// runOnce performs one synchronous run of a scheduled request.
func (c *Client) runOnce(ctx context.Context, req *Request) (*Response, error) {
	req.resetAttempts()
	policy := c.policyFor(req)
	for {
		o, fatal := c.attempt(ctx, req)
		if fatal != nil {
			return newResponse(req, o), fatal
		}
		if !c.retryNext(ctx, req, policy, o) {
			return c.materialize(req, o)
		}
	}
}

// CancelTask stops the scheduled task for req. It reports whether one
// was pending.
func (c *Client) CancelTask(req *Request) bool {
	c.tasksMu.Lock()
	t, ok := c.tasks[req]
	delete(c.tasks, req)
	c.tasksMu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// CancelPeriodicTasks stops every scheduled task.
func (c *Client) CancelPeriodicTasks() {
	c.tasksMu.Lock()
	tasks := c.tasks
	c.tasks = make(map[*Request]*task)
	c.tasksMu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

// PendingTasks returns the number of scheduled tasks still running.
func (c *Client) PendingTasks() int {
	c.tasksMu.Lock()
	defer c.tasksMu.Unlock()
	return len(c.tasks)
}
