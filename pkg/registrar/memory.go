package registrar

import (
	"context"
	"geosql/pkg/function"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Memory is an in-process Registrar. It backs install dry runs, and counts
// registrations so double installs are visible.
type Memory struct {
	mu        sync.Mutex
	functions map[string]*function.Function
	counts    map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		functions: make(map[string]*function.Function),
		counts:    make(map[string]int),
	}
}

func (m *Memory) Registered(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.functions[strings.ToLower(name)]
	return ok, nil
}

func (m *Memory) Register(_ context.Context, fn *function.Function) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(fn.Name)
	if _, ok := m.functions[key]; ok {
		return errors.Newf("function %s already exists", fn.Name)
	}
	m.functions[key] = fn
	m.counts[key]++
	return nil
}

func (m *Memory) Unregister(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.functions, strings.ToLower(name))
	return nil
}

// Names lists the registered functions, sorted.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.functions))
	for _, fn := range m.functions {
		out = append(out, fn.Name)
	}
	sort.Strings(out)
	return out
}

// Registrations returns how many times name has been registered.
func (m *Memory) Registrations(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[strings.ToLower(name)]
}

// Call invokes a registered function the way the database would.
func (m *Memory) Call(name string, args ...any) (any, error) {
	m.mu.Lock()
	fn, ok := m.functions[strings.ToLower(name)]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Mark(errors.Newf("function %s is not registered", name), function.ErrUnknownFunction)
	}
	return fn.Call(args)
}
