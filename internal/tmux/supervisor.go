package tmux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hivectl/hive/internal/log"
)

// enterDelay separates typing a message from pressing Enter. Interactive CLI
// prompts drop the newline when it arrives in the same burst as the text.
const enterDelay = 500 * time.Millisecond

// confirmRetries bounds how many extra Enters SendMessageWithConfirmation
// presses before giving up.
const confirmRetries = 3

// Supervisor manages hive-owned tmux sessions.
type Supervisor struct {
	exec  Executor
	sleep func(time.Duration)
}

// NewSupervisor creates a supervisor over the given executor.
func NewSupervisor(exec Executor) *Supervisor {
	return &Supervisor{exec: exec, sleep: time.Sleep}
}

// NoDelay disables the inter-keystroke sleeps. Only useful with a fake
// executor; against a real tmux the delays are load-bearing.
func (s *Supervisor) NoDelay() *Supervisor {
	s.sleep = func(time.Duration) {}
	return s
}

// CreateSession starts a detached session named name, running argv in
// workDir with the extra environment entries ("K=V").
func (s *Supervisor) CreateSession(ctx context.Context, name, workDir string, argv []string, env []string) error {
	if !strings.HasPrefix(name, SessionPrefix) {
		return fmt.Errorf("session %q lacks the %q prefix", name, SessionPrefix)
	}
	args := []string{"new-session", "-d", "-s", name, "-c", workDir}
	for _, kv := range env {
		args = append(args, "-e", kv)
	}
	args = append(args, argv...)
	if _, err := s.exec.Run(ctx, args...); err != nil {
		return fmt.Errorf("creating session %s: %w", name, err)
	}
	log.Info(log.CatTmux, "session created", "session", name, "dir", workDir)
	return nil
}

// IsRunning reports whether the session exists.
func (s *Supervisor) IsRunning(ctx context.Context, name string) bool {
	_, err := s.exec.Run(ctx, "has-session", "-t", name)
	return err == nil
}

// SendMessage types text into the session without pressing Enter, so a
// message can be staged and submitted separately with SendEnter.
func (s *Supervisor) SendMessage(ctx context.Context, name, text string) error {
	if _, err := s.exec.Run(ctx, "send-keys", "-t", name, "-l", text); err != nil {
		return fmt.Errorf("sending to %s: %w", name, err)
	}
	return nil
}

// SendEnter presses Enter in the session.
func (s *Supervisor) SendEnter(ctx context.Context, name string) error {
	if _, err := s.exec.Run(ctx, "send-keys", "-t", name, "Enter"); err != nil {
		return fmt.Errorf("pressing enter in %s: %w", name, err)
	}
	return nil
}

// SendMessageWithConfirmation sends text and verifies the CLI consumed it:
// when the text is still sitting in the input area after the delay, Enter is
// pressed again, up to confirmRetries times.
func (s *Supervisor) SendMessageWithConfirmation(ctx context.Context, name, text string, captureLines int) error {
	if err := s.SendMessage(ctx, name, text); err != nil {
		return err
	}
	s.sleep(enterDelay)
	if err := s.SendEnter(ctx, name); err != nil {
		return err
	}

	probe := confirmProbe(text)
	for attempt := 0; attempt < confirmRetries; attempt++ {
		s.sleep(enterDelay)
		pane, err := s.CapturePane(ctx, name, captureLines)
		if err != nil {
			return err
		}
		if !strings.Contains(pane, probe) {
			return nil
		}
		log.Debug(log.CatTmux, "message still pending, pressing enter again",
			"session", name, "attempt", attempt+1)
		if err := s.SendEnter(ctx, name); err != nil {
			return err
		}
	}
	return fmt.Errorf("session %s did not consume message after %d retries", name, confirmRetries)
}

// CapturePane returns the last lines of the session's visible pane plus
// scrollback.
func (s *Supervisor) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	out, err := s.exec.Run(ctx, "capture-pane", "-t", name, "-p", "-S", fmt.Sprintf("-%d", lines))
	if err != nil {
		return "", fmt.Errorf("capturing pane of %s: %w", name, err)
	}
	return out, nil
}

// ListSessions returns the names of all hive-owned sessions. A missing tmux
// server yields an empty list, not an error.
func (s *Supervisor) ListSessions(ctx context.Context) ([]string, error) {
	out, err := s.exec.Run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// tmux exits nonzero when no server is running.
		if strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, SessionPrefix) {
			names = append(names, line)
		}
	}
	return names, nil
}

// Kill terminates a session. Killing an absent session is not an error.
func (s *Supervisor) Kill(ctx context.Context, name string) error {
	if !strings.HasPrefix(name, SessionPrefix) {
		return fmt.Errorf("refusing to kill non-hive session %q", name)
	}
	if _, err := s.exec.Run(ctx, "kill-session", "-t", name); err != nil {
		if strings.Contains(err.Error(), "can't find session") {
			return nil
		}
		return fmt.Errorf("killing session %s: %w", name, err)
	}
	log.Info(log.CatTmux, "session killed", "session", name)
	return nil
}

// confirmProbe picks the fragment used to detect an unconsumed message. The
// tail is what remains visible in a one-line input area.
func confirmProbe(text string) string {
	const probeLen = 40
	text = strings.TrimSpace(text)
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[i+1:])
	}
	if len(text) > probeLen {
		return text[len(text)-probeLen:]
	}
	return text
}

// SessionName builds the canonical session name for an agent role on a team,
// with an optional collision suffix (n > 0).
func SessionName(role, teamSlug string, n int) string {
	name := SessionPrefix + role + "-" + teamSlug
	if n > 0 {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	return name
}
