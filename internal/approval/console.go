package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/wardenhq/warden/internal/risk"
)

// ConsoleSurface prompts a human at a terminal. The primary choice is
// approve/deny; an approval or denial is followed by a secondary
// "remember?" exchange that sets the record's remember scope.
type ConsoleSurface struct {
	In  io.Reader
	Out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewConsoleSurface prompts on stdin/stderr. Stderr keeps the prompt
// visible when stdout is piped.
func NewConsoleSurface() *ConsoleSurface {
	return &ConsoleSurface{In: os.Stdin, Out: os.Stderr}
}

// Prompt implements Surface.
func (s *ConsoleSurface) Prompt(ctx context.Context, req Request, assessment risk.Assessment) (Reply, error) {
	fmt.Fprintf(s.Out, "\napproval required [%s]\n", req.ID)
	fmt.Fprintf(s.Out, "  action: %s\n", req.Context)
	fmt.Fprintf(s.Out, "  reason: %s\n", req.Reason)
	fmt.Fprintf(s.Out, "  risk:   %d/100 (%s)\n", assessment.Score, assessment.Level)
	for _, f := range assessment.Factors {
		fmt.Fprintf(s.Out, "    - %s (+%d): %s\n", f.Name, f.Score, f.Description)
	}
	fmt.Fprintf(s.Out, "approve? [y/n]: ")

	answer, err := s.readLine(ctx)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{Decision: Denied}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "a", "approve":
		reply.Decision = Approved
	case "n", "no", "d", "deny":
		reply.Decision = Denied
	default:
		reply.Comment = fmt.Sprintf("unrecognized answer %q treated as deny", answer)
		return reply, nil
	}

	fmt.Fprintf(s.Out, "remember this decision? [n]o / [r]un / [s]ession / [p]ermanent: ")
	scopeAnswer, err := s.readLine(ctx)
	if err != nil {
		// The primary decision already happened; a cancelled remember
		// exchange just means "don't remember".
		return reply, nil
	}
	switch strings.ToLower(strings.TrimSpace(scopeAnswer)) {
	case "r", "run":
		reply.Remember = true
		reply.RememberScope = ScopeRun
	case "s", "session":
		reply.Remember = true
		reply.RememberScope = ScopeSession
	case "p", "permanent":
		reply.Remember = true
		reply.RememberScope = ScopePermanent
	}
	return reply, nil
}

// readLine reads one line, abandoning the read when ctx is cancelled.
// The blocked reader goroutine is left to finish with the process; stdin
// reads are not interruptible portably. One buffered reader is shared
// across exchanges so bytes buffered by the first read stay available
// to the second.
func (s *ConsoleSurface) readLine(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.reader == nil {
		s.reader = bufio.NewReader(s.In)
	}
	reader := s.reader
	s.mu.Unlock()

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	select {
	case line := <-lineCh:
		return line, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
