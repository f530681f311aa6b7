// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// KeyframeManager - 视频关键帧提取工具
//
// Package process wraps exec.Cmd for a single run of a decoder process whose
// stdout carries frame data and whose stderr carries log output.

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"
)

// Process represents one run of a decoder binary
type Process interface {
	Start(ctx context.Context) (io.ReadCloser, error)
	Wait() error
	Kill() error
	Status() Status
	IsRunning() bool
}

// Config for a process
type Config struct {
	Binary        string
	Args          []string
	Parser        Parser
	Sampler       Sampler
	OnStateChange func(from, to string)
	Logger        Logger
}

// Status of a process
type Status struct {
	State    string
	States   States
	Duration time.Duration
	Time     time.Time
	CPU      float64
	Memory   uint64
	Peak     uint64
}

// States cumulative counts
type States struct {
	Starting  uint64
	Running   uint64
	Finishing uint64
	Finished  uint64
	Failed    uint64
	Killed    uint64
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

var ErrNotStarted = errors.New("process not started")

type stateType string

const (
	stateIdle      stateType = "idle"
	stateStarting  stateType = "starting"
	stateRunning   stateType = "running"
	stateFinishing stateType = "finishing"
	stateFinished  stateType = "finished"
	stateFailed    stateType = "failed"
	stateKilled    stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning || s == stateFinishing
}

// allowed state changes
var transitions = map[stateType][]stateType{
	stateIdle:      {stateStarting},
	stateStarting:  {stateRunning, stateFailed},
	stateRunning:   {stateFinishing, stateFinished, stateFailed, stateKilled},
	stateFinishing: {stateFinished, stateFailed, stateKilled},
}

type process struct {
	binary string
	args   []string
	cmd    *exec.Cmd

	state struct {
		state  stateType
		time   time.Time
		states States
		lock   sync.Mutex
	}
	parser        Parser
	sampler       Sampler
	logger        Logger
	onStateChange func(from, to string)

	stderrDone chan struct{}
	waitOnce   sync.Once
	waitErr    error
}

// New creates a new process
func New(config Config) (Process, error) {
	if len(config.Binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	p := &process{
		binary:        config.Binary,
		args:          config.Args,
		parser:        config.Parser,
		sampler:       config.Sampler,
		logger:        config.Logger,
		onStateChange: config.OnStateChange,
	}
	if p.parser == nil {
		p.parser = &nullParser{}
	}
	if p.sampler == nil {
		p.sampler = NewNullSampler()
	}
	if p.logger == nil {
		p.logger = &nopLogger{}
	}

	p.state.state = stateIdle
	p.state.time = time.Now()
	return p, nil
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	prev := p.state.state
	ok := false
	for _, next := range transitions[prev] {
		if next == state {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	switch state {
	case stateStarting:
		p.state.states.Starting++
	case stateRunning:
		p.state.states.Running++
	case stateFinishing:
		p.state.states.Finishing++
	case stateFinished:
		p.state.states.Finished++
	case stateFailed:
		p.state.states.Failed++
	case stateKilled:
		p.state.states.Killed++
	}

	if p.onStateChange != nil {
		go p.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) IsRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Status() Status {
	cpu, memory := p.sampler.Current()

	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	return Status{
		State:    p.state.state.String(),
		States:   p.state.states,
		Duration: time.Since(p.state.time),
		Time:     p.state.time,
		CPU:      cpu,
		Memory:   memory,
		Peak:     p.sampler.Peak(),
	}
}

// Start launches the binary and returns its stdout. The caller reads stdout
// to the end (or kills the process) and then calls Wait.
func (p *process) Start(ctx context.Context) (io.ReadCloser, error) {
	if err := p.setState(stateStarting); err != nil {
		return nil, err
	}

	p.cmd = exec.CommandContext(ctx, p.binary, p.args...)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		p.fail(err)
		return nil, err
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		p.fail(err)
		return nil, err
	}

	if err := p.cmd.Start(); err != nil {
		p.fail(err)
		return nil, err
	}

	if err := p.sampler.Start(p.cmd.Process.Pid); err != nil {
		p.logger.Debug("sampler for pid %d: %v", p.cmd.Process.Pid, err)
	}
	p.setState(stateRunning)

	p.parser.ResetStats()
	p.parser.ResetLog()
	p.stderrDone = make(chan struct{})
	go p.reader(stderr)

	return stdout, nil
}

func (p *process) fail(err error) {
	p.parser.Parse(err.Error())
	p.setState(stateFailed)
}

func (p *process) Kill() error {
	if !p.IsRunning() || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if p.getState() != stateFinishing {
		p.setState(stateFinishing)
	}
	return p.cmd.Process.Kill()
}

// Wait reaps the process. It is safe to call more than once.
func (p *process) Wait() error {
	if p.cmd == nil || p.stderrDone == nil {
		return ErrNotStarted
	}
	p.waitOnce.Do(func() {
		<-p.stderrDone
		p.waitErr = p.waiter()
	})
	return p.waitErr
}

func (p *process) waiter() error {
	killed := p.getState() == stateFinishing
	err := p.cmd.Wait()
	p.sampler.Stop()

	switch {
	case err == nil:
		p.setState(stateFinished)
		return nil
	case killed:
		p.setState(stateKilled)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		p.setState(stateKilled)
	} else {
		p.setState(stateFailed)
	}

	if last := LastLine(p.parser); last != "" {
		return fmt.Errorf("%s: %w: %s", p.binary, err, last)
	}
	return fmt.Errorf("%s: %w", p.binary, err)
}

func (p *process) reader(r io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(r)
	scanner.Split(scanLine)
	for scanner.Scan() {
		line := scanner.Text()
		p.parser.Parse(line)
		p.logger.Debug("%s: %s", p.binary, line)
	}
}

// scanLine splits on \n and \r so progress lines rewritten in place are
// seen one by one.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nullParser struct{}

func (p *nullParser) Parse(line string) uint64 { return 1 }
func (p *nullParser) ResetStats()              {}
func (p *nullParser) ResetLog()                {}
func (p *nullParser) Log() []Line              { return nil }

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
