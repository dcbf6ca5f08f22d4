// Package probe runs driver records against enumeration backends and
// stores what they construct in a device registry.
package probe

import (
	"errors"
	"fmt"

	"github.com/pion/logging"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	ilog "drivercore-go/internal/logging"
	"drivercore-go/register"
	"drivercore-go/types"
)

// Result is what a successful task hands back to the engine.
type Result struct {
	Descriptor types.Descriptor
	Driver     driver.Driver
}

// Task is one deferred probe of one record against one piece of hardware.
type Task struct {
	// Target names the hardware, e.g. a node path or PCI address.
	Target string
	Run    func() (Result, error)
	// Claimed runs after the result is in the registry.
	Claimed func()
}

// Backend yields the tasks a record applies to. A record the backend has
// no rule for yields no tasks.
type Backend interface {
	Name() string
	Candidates(e register.Entry) ([]Task, error)
}

// RecordError ties a hard probe failure to the record that caused it.
type RecordError struct {
	Name   string
	Target string
	Err    error
}

func (e *RecordError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("probe %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("probe %s on %s: %v", e.Name, e.Target, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

type Engine struct {
	reg   *device.Registry
	table *register.Table
	log   logging.LeveledLogger
}

func NewEngine(reg *device.Registry, table *register.Table, lf logging.LoggerFactory) *Engine {
	return &Engine{reg: reg, table: table, log: ilog.Scope(lf, "probe")}
}

// Run probes entries in the order given against one backend. Callers
// pass a snapshot of the table's pending records; a record that succeeds
// against one backend is still offered to later backends of the same
// pass.
//
// A task that fails softly (not_match, contention) leaves its record pending. Malformed
// tree data always ends the pass. Any other failure ends the pass when
// strict is set and is logged at warn level otherwise.
func (e *Engine) Run(b Backend, entries []register.Entry, strict bool) error {
	for _, ent := range entries {
		tasks, err := b.Candidates(ent)
		if err != nil {
			if err := e.Fail(ent.Record.Name, "", err, strict); err != nil {
				return err
			}
			continue
		}
		for _, t := range tasks {
			err := e.Exec(ent, t)
			if err == nil {
				continue
			}
			if errcode.IsSoft(err) {
				e.log.Tracef("%s skipped %s: %v", ent.Record.Name, t.Target, err)
				continue
			}
			if err := e.Fail(ent.Record.Name, t.Target, err, strict); err != nil {
				return err
			}
		}
	}
	return nil
}

// Exec runs t and, on success, inserts the result and marks the record
// probed.
func (e *Engine) Exec(ent register.Entry, t Task) error {
	res, err := t.Run()
	if err != nil {
		return err
	}
	id := res.Descriptor.DeviceID
	if err := e.reg.Insert(id, res.Driver, res.Descriptor); err != nil {
		if res.Driver != nil {
			if cerr := res.Driver.Close(); cerr != nil {
				return errors.Join(err, cerr)
			}
		}
		return err
	}
	e.table.MarkProbed(ent.ID)
	if t.Claimed != nil {
		t.Claimed()
	}
	e.log.Debugf("%s: %s bound to %s", id, ent.Record.Name, t.Target)
	return nil
}

// Fail applies the pass policy to a hard error. It returns the error to
// stop the pass with, or nil after logging when the pass continues.
func (e *Engine) Fail(name, target string, err error, strict bool) error {
	rerr := &RecordError{Name: name, Target: target, Err: err}
	if strict || errcode.Of(err) == errcode.MalformedTree {
		return rerr
	}
	e.log.Warnf("Probe failed for [%s]: %v", name, err)
	return nil
}

// Registry returns the registry results are inserted into.
func (e *Engine) Registry() *device.Registry { return e.reg }

// Resolve reconciles the two ways a constructor can hand over its
// instance: returning it, or registering it through pdev. Doing both, or
// neither, is an error.
func Resolve(name string, returned driver.Driver, pdev *device.PlatformDevice) (driver.Driver, error) {
	registered, n := pdev.Registered()
	switch {
	case n > 1 || (n == 1 && returned != nil):
		return nil, errcode.New(errcode.AlreadyExists, "probe", name+" produced more than one driver")
	case n == 1:
		returned = registered
	}
	if returned == nil {
		return nil, errcode.New(errcode.NoDevice, "probe", name+" produced no driver")
	}
	return returned, nil
}
