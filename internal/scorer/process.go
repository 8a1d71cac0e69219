package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the scorer exits or is killed.
const waitDelay = 2 * time.Second

// ProcessScorer runs an external ranking program:
//
//	<command> [args...] <candidate ids JSON> <user id> <count>
//
// The program must print its ranked ids as the last JSON-array line on
// stdout and exit 0.
type ProcessScorer struct {
	command string
	args    []string
	sem     *semaphore.Weighted
}

// Option configures a ProcessScorer.
type Option func(*ProcessScorer)

// WithMaxConcurrent caps the number of scorer processes running at once.
// Values <= 0 leave launches unbounded.
func WithMaxConcurrent(n int) Option {
	return func(p *ProcessScorer) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewProcessScorer creates a ProcessScorer for command with leading args
// (for example an interpreter script path).
func NewProcessScorer(command string, args []string, opts ...Option) *ProcessScorer {
	p := &ProcessScorer{command: command, args: slices.Clone(args)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Score runs the scorer and parses its ranked ids. A timeout <= 0 means the
// call is bounded only by ctx.
func (p *ProcessScorer) Score(ctx context.Context, req Request, timeout time.Duration) ([]int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, p.contextError(ctx, "waiting for a scorer slot", "")
		}
		defer p.sem.Release(1)
	}

	ids := req.CandidateIDs
	if ids == nil {
		ids = []int64{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: encode candidate ids")
	}

	args := append(slices.Clone(p.args),
		string(idsJSON),
		strconv.FormatInt(req.UserID, 10),
		strconv.Itoa(req.Count),
	)

	runID := uuid.NewString()
	log := zap.L().With(
		zap.String("scorer_run", runID),
		zap.String("command", p.command),
		zap.Int64("user_id", req.UserID),
	)

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.WaitDelay = waitDelay

	// exec copies both streams on their own goroutines; Wait returns only
	// after the process exits and both copies finish.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.Error("scorer: launch failed", zap.Error(err))
		return nil, &Error{Kind: KindLaunchFailed, Detail: err.Error(), Err: err}
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if waitErr != nil && ctx.Err() != nil {
		log.Warn("scorer: stopped before completion",
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", stderr.String()),
		)
		return nil, p.contextError(ctx, "process killed", stderr.String())
	}

	// A clean exit whose output pipes were held open past waitDelay by a
	// background grandchild still produced its complete stdout.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		log.Warn("scorer: output pipes held open after exit",
			zap.Duration("elapsed", elapsed),
			zap.Duration("wait_delay", waitDelay),
		)
		waitErr = nil
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		log.Error("scorer: process failed",
			zap.Int("exit_code", exitCode),
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", stderr.String()),
		)
		return nil, &Error{
			Kind:     KindNonZeroExit,
			Detail:   stderr.String(),
			ExitCode: exitCode,
			Err:      waitErr,
		}
	}

	ranked, noise, err := extract(stdout.String())
	if err != nil {
		log.Error("scorer: malformed output",
			zap.String("stdout", stdout.String()),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
		return nil, err
	}

	log.Debug("scorer: complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("candidates", len(req.CandidateIDs)),
		zap.Int("ranked", len(ranked)),
		zap.Strings("stdout_noise", noise),
		zap.String("stderr", stderr.String()),
	)

	return ranked, nil
}

// contextError maps a finished context to a timeout error, or returns the
// cancellation cause when the caller gave up.
func (p *ProcessScorer) contextError(ctx context.Context, what, stderr string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		detail := what
		if strings.TrimSpace(stderr) != "" {
			detail += ": " + stderr
		}
		return &Error{Kind: KindTimeout, Detail: detail, Err: ctx.Err()}
	}
	return eris.Wrap(ctx.Err(), "scorer: "+what)
}
