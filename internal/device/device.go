package device

import (
	"fmt"
	"sync"

	"github.com/mlpotfit/fitting-core/pkg/logger"
)

// Task is the handle returned by a dispatch. Wait is the explicit join:
// results written by the task (device prediction buffers included) are
// valid reads only after Wait returns.
type Task struct {
	err  error
	done chan struct{}
}

// Wait blocks until the task has completed and returns its error
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

type job struct {
	fn   func() error
	task *Task
}

// Device is one compute device. It owns a single worker that executes
// submitted work strictly in order, so the device's datasets are never
// mutated concurrently.
type Device struct {
	id   int
	jobs chan job
}

// ID returns the device index
func (d *Device) ID() int {
	return d.id
}

// Submit dispatches work to the device and returns its handle. The
// work runs asynchronously with respect to the caller.
func (d *Device) Submit(fn func() error) *Task {
	t := &Task{done: make(chan struct{})}
	d.jobs <- job{fn: fn, task: t}
	return t
}

// Pool holds the run's fixed set of devices. Devices run concurrently
// and independently of each other; there is no cancellation, retry or
// backpressure. A failed task surfaces through its handle and the
// caller aborts the run.
type Pool struct {
	devices []*Device
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewPool starts count device workers
func NewPool(count int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("device count must be positive, got %d", count)
	}
	p := &Pool{devices: make([]*Device, count)}
	for i := 0; i < count; i++ {
		d := &Device{id: i, jobs: make(chan job)}
		p.devices[i] = d
		p.wg.Add(1)
		go p.run(d)
	}
	logger.Debug("device pool started", "devices", count)
	return p, nil
}

func (p *Pool) run(d *Device) {
	defer p.wg.Done()
	for j := range d.jobs {
		j.task.err = j.fn()
		close(j.task.done)
	}
}

// Size returns the number of devices
func (p *Pool) Size() int {
	return len(p.devices)
}

// Device returns the device at index i
func (p *Pool) Device(i int) *Device {
	return p.devices[i]
}

// Close stops all workers after their queued work drains. No Submit
// may be issued after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, d := range p.devices {
			close(d.jobs)
		}
		p.wg.Wait()
	})
}
