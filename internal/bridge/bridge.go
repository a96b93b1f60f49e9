// Package bridge talks to vendor helper processes over a line protocol. Every request is one
// line "<command> [args...]", answered by one line "ok [payload]" or "err <message>".
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// MaxLineSize bounds a single response line; a full spectrum is one line
const MaxLineSize = 1 << 20

var (
	// ErrClosed is returned when calling a closed client or a helper that has exited
	ErrClosed = errors.New("bridge closed")

	// ErrProtocol is returned for response lines that are neither "ok" nor "err"
	ErrProtocol = errors.New("malformed bridge response")

	// ErrBrokenPipe is returned when there's an error reading from stdout or stderr
	ErrBrokenPipe = errors.New("broken pipe")
)

// RemoteError is an "err" response from the helper
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(c *Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("bridge", c.name))
	}
}

// Client is a request/response client for one helper. Calls are serialised.
type Client struct {
	name string
	w    io.Writer

	responses chan string
	done      chan struct{} // closed when the response reader ends
	quit      chan struct{} // closed by Close
	readErr   error

	mu    sync.Mutex
	stale int // responses owed to abandoned calls

	closed atomic.Bool
	closer func() error
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewClient creates a client which writes requests to w and reads responses from r
func NewClient(name string, r io.Reader, w io.Writer, options ...func(c *Client)) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	c := &Client{
		name:      name,
		w:         w,
		responses: make(chan string),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
		logger:    logger,
	}
	for _, option := range options {
		option(c)
	}

	c.wg.Add(1)
	go c.handleStdout(r)

	return c
}

// Start spawns the helper at path and connects a client to its stdin and stdout.
// The helper's stderr is logged.
func Start(ctx context.Context, name, path string, args []string, options ...func(c *Client)) (*Client, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error creating stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("error starting %s: %w", path, err)
	}

	c := NewClient(name, stdout, stdin, options...)
	c.logger.Info("helper started", slog.String("path", path), slog.Int("pid", cmd.Process.Pid))

	c.wg.Add(1)
	go c.handleStderr(stderr)

	waited := make(chan error, 1)
	go func() {
		waited <- cmd.Wait()
	}()

	c.closer = func() error {
		defer cancel()

		errs := []error{stdin.Close()}
		select {
		case err := <-waited:
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, fmt.Errorf("command exited with error: %w", err))
			}
		case <-ctx.Done():
		}
		return errors.Join(errs...)
	}

	return c, nil
}

// Call sends one request and waits for its response payload. If ctx ends first the call is
// abandoned and its late response is discarded by the next call.
func (c *Client) Call(ctx context.Context, command string, args ...string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := command
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}

	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return "", fmt.Errorf("%w: error writing request: %w", ErrBrokenPipe, err)
	}

	for {
		select {
		case <-ctx.Done():
			c.stale++
			return "", ctx.Err()

		case <-c.quit:
			return "", ErrClosed

		case <-c.done:
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", ErrClosed

		case resp := <-c.responses:
			if c.stale > 0 {
				c.stale--
				c.logger.Debug("discarding stale response", slog.String("line", resp))
				continue
			}
			return parseResponse(command, resp)
		}
	}
}

// Close releases the client and, for spawned helpers, waits for the process to exit
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.quit)

	var err error
	if c.closer != nil {
		err = c.closer()
	} else if wc, ok := c.w.(io.Closer); ok {
		err = wc.Close()
	}

	c.wg.Wait()
	c.logger.Info("bridge closed")

	return err
}

func parseResponse(command, line string) (string, error) {
	status, payload, _ := strings.Cut(line, " ")
	switch status {
	case "ok":
		return strings.TrimSpace(payload), nil
	case "err":
		return "", &RemoteError{Command: command, Message: strings.TrimSpace(payload)}
	default:
		return "", fmt.Errorf("%w: %q", ErrProtocol, line)
	}
}

// handleStdout reads response lines until the reader ends
func (c *Client) handleStdout(stdout io.Reader) {
	defer c.wg.Done()
	defer close(c.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case c.responses <- line:
		case <-c.quit:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		c.readErr = fmt.Errorf("%w: error reading stdout: %w", ErrBrokenPipe, err)
		c.logger.Error(c.readErr.Error())
	}
}

// handleStderr reads from stderr and logs it
func (c *Client) handleStderr(stderr io.Reader) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		c.logger.Warn(fmt.Sprintf("%s >> %s", c.name, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		c.logger.Error(fmt.Sprintf("%s: error reading stderr: %s", ErrBrokenPipe, err))
	}
}

// ParseFloats parses a space separated list of numbers
func ParseFloats(payload string) ([]float64, error) {
	fields := strings.Fields(payload)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ParseInts parses a space separated list of integers
func ParseInts(payload string) ([]int, error) {
	fields := strings.Fields(payload)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid integer at position %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
