// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package commands runs the commands of artifact definitions and captures
// their output.
package commands

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/internal/spooled"
)

// DefaultMemoryLimit is the output size kept in memory before spooling to
// disk.
const DefaultMemoryLimit = 10 * 1024 * 1024

// Sink receives the combined output of a command.
type Sink interface {
	AddCollectedCommand(artifact, command string, output io.Reader) error
}

// Command is a registered command.
type Command struct {
	Artifact string
	Cmd      string
	Args     []string
}

// String returns the command line.
func (c Command) String() string {
	return strings.Join(append([]string{c.Cmd}, c.Args...), " ")
}

// Executor runs commands one after another.
type Executor struct {
	// Fs and SpoolDir hold outputs larger than MemoryLimit.
	Fs          afero.Fs
	SpoolDir    string
	MemoryLimit int64

	commands []Command
}

// NewExecutor creates an executor that spools to the temporary directory.
func NewExecutor() *Executor {
	return &Executor{Fs: afero.NewOsFs(), SpoolDir: os.TempDir(), MemoryLimit: DefaultMemoryLimit}
}

// AddCommand registers cmd with args for artifact.
func (e *Executor) AddCommand(artifact, cmd string, args []string) {
	e.commands = append(e.commands, Command{Artifact: artifact, Cmd: cmd, Args: args})
}

// Commands returns the registered commands.
func (e *Executor) Commands() []Command {
	return e.commands
}

// Collect runs all commands and hands their output to sink. Failing commands
// are logged and their output, which may be empty, is still collected.
func (e *Executor) Collect(ctx context.Context, sink Sink) {
	for _, c := range e.commands {
		if err := ctx.Err(); err != nil {
			logging.Warnf("Command '%s' for artifact '%s' was not run: %s", c, c.Artifact, err)
			continue
		}
		e.collect(ctx, c, sink)
	}
}

func (e *Executor) collect(ctx context.Context, c Command, sink Sink) {
	output, teardown := spooled.New(e.Fs, e.SpoolDir, e.MemoryLimit)
	defer func() {
		if err := teardown(); err != nil {
			logging.Warnf("could not remove output of '%s': %s", c, err)
		}
	}()

	cmd := exec.CommandContext(ctx, c.Cmd, c.Args...) // #nosec
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrNotFound), os.IsNotExist(err):
		logging.Warnf("Command '%s' for artifact '%s' could not be found", c.Cmd, c.Artifact)
	case errors.As(err, &exitErr):
		logging.Warnf("Command '%s' for artifact '%s' returned error code '%d'", c, c.Artifact, exitErr.ExitCode())
	default:
		logging.Warnf("Command '%s' for artifact '%s' failed: %s", c, c.Artifact, err)
	}

	if err := sink.AddCollectedCommand(c.Artifact, c.String(), output); err != nil {
		logging.Errorf("could not collect output of '%s': %s", c, err)
	}
}
