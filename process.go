// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hsvisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ProcessManifest describes a managed application process.
type ProcessManifest struct {
	Name        string        `yaml:"name" validate:"required,max=20"`
	Description string        `yaml:"description"`
	Command     []string      `yaml:"command" validate:"min=1"`
	Env         []string      `yaml:"env"`
	Dir         string        `yaml:"dir"`
	StopCmd     []string      `yaml:"stopCommand"`
	StopTime    time.Duration `yaml:"stopTime"`
	RateLimit   int           `yaml:"rateLimit" validate:"gte=0"`
	RatePeriod  time.Duration `yaml:"ratePeriod"`
}

// AppProcess is an application running as an operating system process.
type AppProcess struct {
	name     string
	desc     string
	logger   zerolog.Logger
	stopTime time.Duration
	stopCmd  *exec.Cmd
	proto    exec.Cmd
	cmd      *exec.Cmd
	running  bool
	reason   error

	rateLimit  int
	ratePeriod time.Duration
	startTimes []time.Time
	starts     int

	lock   sync.Mutex
	waiter sync.WaitGroup
}

// NewAppProcess creates a stopped process from a manifest.
func NewAppProcess(m ProcessManifest, logger zerolog.Logger) (*AppProcess, error) {
	if e := getValidator().Struct(m); e != nil {
		return nil, errors.Wrapf(e, "manifest %q", m.Name)
	}
	p := &AppProcess{
		name:     m.Name,
		desc:     m.Description,
		stopTime: m.StopTime,
		logger:   logger.With().Str("app", m.Name).Logger(),
	}
	if p.stopTime == 0 {
		p.stopTime = time.Second * 10
	}
	if m.RateLimit > 0 {
		p.rateLimit = m.RateLimit
		p.ratePeriod = m.RatePeriod
		if p.ratePeriod == 0 {
			p.ratePeriod = time.Minute
		}
		p.startTimes = make([]time.Time, m.RateLimit)
	}
	p.proto.Path = m.Command[0]
	p.proto.Args = m.Command
	p.proto.Dir = m.Dir
	if len(m.Env) != 0 {
		p.proto.Env = append(os.Environ(), m.Env...)
	}
	if p.desc == "" {
		p.desc = m.Name + " process: " + m.Command[0]
	}
	if len(m.StopCmd) != 0 {
		p.stopCmd = exec.Command(m.StopCmd[0], m.StopCmd[1:]...)
	}
	if !strings.ContainsRune(p.proto.Path, os.PathSeparator) {
		if lp, e := exec.LookPath(p.proto.Path); e == nil {
			p.proto.Path = lp
		}
	}
	return p, nil
}

func (p *AppProcess) Name() string {
	return p.name
}

func (p *AppProcess) Description() string {
	return p.desc
}

// Pid returns the process id, or 0 when not running.
func (p *AppProcess) Pid() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.running || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Running reports whether the process is alive.
func (p *AppProcess) Running() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.running
}

// Reason returns why the process last exited, if it did so on its own.
func (p *AppProcess) Reason() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.reason
}

func (p *AppProcess) doLog(r io.ReadCloser, stream string) {
	// Gather stdin/stdout in chunks of lines
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			p.logger.Info().Str("stream", stream).
				Msg(strings.TrimRight(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}

func (p *AppProcess) doWait(cmd *exec.Cmd) {
	e := cmd.Wait()
	p.lock.Lock()
	if p.cmd == cmd {
		p.running = false
		if e == nil {
			e = errors.New("Unexpected termination")
		}
		p.reason = e
		p.logger.Warn().Err(e).Msg("process exited")
	}
	p.lock.Unlock()
	p.waiter.Done()
}

// Start launches the process.  Starting a running process does nothing.
func (p *AppProcess) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.running {
		return nil
	}

	cmd := &exec.Cmd{}
	*cmd = p.proto
	if stdout, e := cmd.StdoutPipe(); e != nil {
		p.logger.Error().Err(e).Msg("capture stdout")
	} else {
		go p.doLog(stdout, "stdout")
	}
	if stderr, e := cmd.StderrPipe(); e != nil {
		p.logger.Error().Err(e).Msg("capture stderr")
	} else {
		go p.doLog(stderr, "stderr")
	}
	if e := cmd.Start(); e != nil {
		p.reason = e
		return errors.Wrapf(e, "start %s", p.name)
	}
	if p.rateLimit > 0 {
		p.startTimes[p.starts%p.rateLimit] = time.Now()
	}
	p.starts++
	p.cmd = cmd
	p.running = true
	p.reason = nil
	p.waiter.Add(1)
	go p.doWait(cmd)
	p.logger.Info().Int("pid", cmd.Process.Pid).Msg("process started")
	return nil
}

func (p *AppProcess) runCmdWithTimeout(pfx string, c *exec.Cmd, d time.Duration) error {
	newc := &exec.Cmd{}
	*newc = *c
	if p.cmd != nil && p.cmd.Process != nil {
		if c.Env == nil {
			newc.Env = os.Environ()
		}
		// Put the Pid into the environment as $PID
		newc.Env = append(make([]string, 0, len(newc.Env)+1), newc.Env...)
		newc.Env = append(newc.Env, fmt.Sprintf("PID=%d", p.cmd.Process.Pid))
	}
	newc.Process = nil
	newc.ProcessState = nil

	if d == 0 {
		d = time.Second * 10
	}
	if stderr, e := newc.StderrPipe(); e == nil {
		go p.doLog(stderr, pfx+"-stderr")
	}
	if stdout, e := newc.StdoutPipe(); e == nil {
		go p.doLog(stdout, pfx+"-stdout")
	}
	if e := newc.Start(); e != nil {
		return e
	}
	proc := newc.Process
	timer := time.AfterFunc(d, func() {
		p.logger.Warn().Str("command", pfx).Msg("command timed out")
		proc.Kill()
	})
	e := newc.Wait()
	timer.Stop()
	return e
}

// Stop shuts the process down, first with the stop command (or SIGTERM)
// and then, after the stop time, by killing it.
func (p *AppProcess) Stop() {
	p.lock.Lock()
	cmd := p.cmd
	if !p.running || cmd == nil || cmd.Process == nil {
		p.running = false
		p.lock.Unlock()
		return
	}
	// doWait only records an exit as a failure for the current cmd.
	p.running = false
	if p.stopCmd == nil {
		if e := cmd.Process.Signal(syscall.SIGTERM); e != nil {
			p.logger.Error().Err(e).Msg("send SIGTERM")
		}
	} else if e := p.runCmdWithTimeout("stop", p.stopCmd, p.stopTime); e != nil {
		p.logger.Error().Err(e).Msg("stop command")
	}
	timer := time.AfterFunc(p.stopTime, func() {
		p.logger.Warn().Msg("graceful shutdown timed out")
		if e := cmd.Process.Kill(); e != nil {
			p.logger.Error().Err(e).Msg("kill")
		}
	})
	p.cmd = nil
	p.lock.Unlock()

	p.waiter.Wait()
	timer.Stop()
	p.logger.Info().Msg("process stopped")
}

// tooQuickly reports ErrRateLimited when the last rateLimit starts all
// happened within ratePeriod.  Call with the lock held.
func (p *AppProcess) tooQuickly() error {
	if p.rateLimit == 0 || p.starts < p.rateLimit {
		return nil
	}
	oldest := p.startTimes[p.starts%p.rateLimit]
	if time.Now().Before(oldest.Add(p.ratePeriod)) {
		return ErrRateLimited
	}
	return nil
}

// CheckRestart reports whether a restart would currently be refused.
func (p *AppProcess) CheckRestart() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tooQuickly()
}

// Restart stops and starts the process, unless it has been started too
// often recently.
func (p *AppProcess) Restart() error {
	if e := p.CheckRestart(); e != nil {
		return e
	}
	p.Stop()
	return p.Start()
}
