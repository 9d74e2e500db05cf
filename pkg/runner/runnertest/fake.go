// Package runnertest provides a scriptable Runner for backend tests.
package runnertest

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/andresrocksuk/devbox/pkg/runner"
)

// Response is what the fake returns for a matched command.
type Response struct {
	Result *runner.Result
	Err    error
	// Effect runs when the command matches, for example to mark a binary as present.
	Effect func()
}

// OK is a zero-exit response with the given stdout.
func OK(stdout string) Response {
	return Response{Result: &runner.Result{Stdout: stdout}}
}

// Exit is a response with a non-zero exit code.
func Exit(code int, stderr string) Response {
	return Response{Result: &runner.Result{ExitCode: code, Stderr: stderr}}
}

// Fake records every command and answers from a table keyed by command-line prefix.
// Unmatched commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses []prefixResponse
	Calls     []runner.Command
	Paths     map[string]string
}

type prefixResponse struct {
	prefix string
	resp   Response
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{Paths: make(map[string]string)}
}

// On registers a response for commands whose rendered line starts with prefix.
// Later registrations take precedence.
func (f *Fake) On(prefix string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, prefixResponse{prefix: prefix, resp: resp})
	return f
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	var matched *Response
	line := cmd.String()
	for i := len(f.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.responses[i].prefix) {
			r := f.responses[i].resp
			matched = &r
			break
		}
	}
	f.mu.Unlock()

	if matched == nil {
		return &runner.Result{}, nil
	}
	if matched.Effect != nil {
		matched.Effect()
	}
	if matched.Result == nil {
		return &runner.Result{}, matched.Err
	}
	res := *matched.Result
	return &res, matched.Err
}

// LookPath implements runner.Runner using the Paths table.
func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// SetPath marks a command as present.
func (f *Fake) SetPath(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Paths[name] = path
}

// Lines returns every recorded command line.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether any recorded command line starts with prefix.
func (f *Fake) Ran(prefix string) bool {
	for _, l := range f.Lines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
