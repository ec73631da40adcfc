package student

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	OpLoad     = "load"
	OpGenerate = "generate"
	OpTrain    = "train"
	OpSave     = "save"
)

const closeTimeout = 10 * time.Second

// Request is one JSON line written to the bridge's stdin. The bridge keeps
// the loaded model in memory between requests, so weights changed by a
// train request are what later generate and save requests see.
type Request struct {
	Op           string  `json:"op"`
	ModelName    string  `json:"model_name,omitempty"`
	ModelPath    string  `json:"model_path,omitempty"`
	Device       string  `json:"device,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
	Target       string  `json:"target,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	OutputDir    string  `json:"output_dir,omitempty"`
}

type Response struct {
	Text    string  `json:"text,omitempty"`
	Applied bool    `json:"applied,omitempty"`
	Loss    float64 `json:"loss,omitempty"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Runner executes a single request against the local model.
type Runner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// Bridge drives the model through one long-lived child process. Each
// request is a JSON line on stdin; the process answers with any number of
// log lines followed by one JSON object line on stdout. The process is
// started on the first request and stays up until Close.
type Bridge struct {
	command string
	args    []string

	mu      sync.Mutex
	proc    *process
	loadReq *Request
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	stderr *tailBuffer
	err    error
}

func NewBridge(command string, args []string) *Bridge {
	return &Bridge{command: command, args: args}
}

func (b *Bridge) Run(ctx context.Context, req Request) (Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc == nil {
		if err := b.start(); err != nil {
			return Response{}, err
		}
		// a restarted process has lost the model; load it again first
		if b.loadReq != nil && req.Op != OpLoad {
			if DebugLog != nil {
				DebugLog("student bridge restarted, reloading %s", b.loadReq.ModelName)
			}
			if _, err := b.roundTrip(ctx, *b.loadReq); err != nil {
				return Response{}, fmt.Errorf("failed to reload model after restart: %w", err)
			}
		}
	}

	resp, err := b.roundTrip(ctx, req)
	if err == nil && req.Op == OpLoad {
		load := req
		b.loadReq = &load
	}
	return resp, err
}

func (b *Bridge) start() error {
	cmd := exec.Command(b.command, b.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stdout: %w", err)
	}
	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string),
		stderr: &tailBuffer{limit: 4096},
	}
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", b.command, err)
	}

	if DebugLog != nil {
		DebugLog("student bridge started: %s %s (pid %d)", b.command, strings.Join(b.args, " "), cmd.Process.Pid)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		p.err = cmd.Wait()
		close(p.lines)
	}()

	b.proc = p
	return nil
}

// roundTrip sends one request and waits for its response line. Caller holds b.mu.
func (b *Bridge) roundTrip(ctx context.Context, req Request) (Response, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	p := b.proc
	if DebugLog != nil {
		DebugLog("student bridge request: op=%s", req.Op)
	}

	if _, err := p.stdin.Write(append(reqJSON, '\n')); err != nil {
		b.kill()
		return Response{}, fmt.Errorf("failed to send %s: %w, stderr: %s", req.Op, err, p.stderr.String())
	}

	for {
		select {
		case <-ctx.Done():
			// the response would arrive out of step with the next request
			b.kill()
			return Response{}, fmt.Errorf("%s interrupted: %w", req.Op, ctx.Err())

		case line, ok := <-p.lines:
			if !ok {
				b.proc = nil
				return Response{}, fmt.Errorf("student bridge exited during %s: %v, stderr: %s", req.Op, p.err, p.stderr.String())
			}
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "{") {
				continue
			}

			var resp Response
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				return Response{}, fmt.Errorf("failed to parse %s response: %w, output: %s", req.Op, err, truncate(line, 500))
			}
			if resp.Error != "" {
				return resp, fmt.Errorf("%s error: %s", req.Op, resp.Error)
			}
			return resp, nil
		}
	}
}

func (b *Bridge) kill() {
	p := b.proc
	if p == nil {
		return
	}
	b.proc = nil
	_ = p.cmd.Process.Kill()
	go func() {
		for range p.lines {
		}
	}()
}

// Close ends the bridge process: stdin is closed so it can exit on its own,
// and it is killed if it has not done so within closeTimeout.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.proc
	if p == nil {
		return nil
	}
	b.proc = nil
	b.loadReq = nil
	_ = p.stdin.Close()

	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				var exitErr *exec.ExitError
				if p.err != nil && !errors.As(p.err, &exitErr) {
					return fmt.Errorf("student bridge: %w", p.err)
				}
				return nil
			}
		case <-timer.C:
			b.proc = p
			b.kill()
			return fmt.Errorf("student bridge did not exit within %s", closeTimeout)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
