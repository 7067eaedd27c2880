// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rpc

import (
	"fmt"
	"sort"
	"sync"
)

// ExecContext says where an operation runs. The zero value is
// HostInterpreter, so an unclassified operation always takes the
// remote path.
type ExecContext uint8

const (
	// HostInterpreter operations run on the host's interpreter thread.
	HostInterpreter ExecContext = iota
	// Local operations are answered in this process by the local surface.
	Local
)

func (c ExecContext) String() string {
	switch c {
	case HostInterpreter:
		return "host"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("ExecContext(%d)", uint8(c))
	}
}

// Operation is the declarative marker attached to an operation name.
type Operation struct {
	Name    string
	Context ExecContext

	// Mutates marks operations that change host state. Such calls are
	// never retried; a caller-side timeout may still leave the mutation
	// applied on the host.
	Mutates bool
}

// Host declares a read-only operation that runs in the host interpreter.
func Host(name string) Operation {
	return Operation{Name: name, Context: HostInterpreter}
}

// HostMutation declares a state-changing operation that runs in the
// host interpreter.
func HostMutation(name string) Operation {
	return Operation{Name: name, Context: HostInterpreter, Mutates: true}
}

// LocalOp declares an operation answered by the local surface.
func LocalOp(name string) Operation {
	return Operation{Name: name, Context: Local}
}

// Table maps operation names to their markers. It is consulted before
// every call; names it does not know classify as HostInterpreter.
type Table struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewTable builds a table from ops. It panics on a duplicate name, since
// tables are declared at package init.
func NewTable(ops ...Operation) *Table {
	t := &Table{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		if err := t.Define(op); err != nil {
			panic(err)
		}
	}
	return t
}

// Define adds op. Redefining a name is an error.
func (t *Table) Define(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("rpc: operation with empty name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.ops[op.Name]; exists {
		return fmt.Errorf("rpc: operation %q already defined", op.Name)
	}
	t.ops[op.Name] = op
	return nil
}

// Classify returns the execution context of name.
func (t *Table) Classify(name string) ExecContext {
	op, _ := t.Lookup(name)
	return op.Context
}

// Lookup returns the marker for name. Unknown names yield a
// HostInterpreter marker and false.
func (t *Table) Lookup(name string) (Operation, bool) {
	if t == nil {
		return Operation{Name: name}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[name]
	if !ok {
		return Operation{Name: name, Context: HostInterpreter}, false
	}
	return op, true
}

// Operations lists every defined operation sorted by name.
func (t *Table) Operations() []Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
