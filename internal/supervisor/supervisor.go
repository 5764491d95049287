// Package supervisor owns the lifecycle of one game-client session: launch,
// PID resolution, log discovery, helper supervision, liveness and quit.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appleblox/gamewatch/internal/bus"
	"github.com/appleblox/gamewatch/internal/config"
	"github.com/appleblox/gamewatch/internal/locator"
	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/session"
	"github.com/appleblox/gamewatch/internal/tailer"
)

var (
	ErrAlreadyRunning    = errors.New("session already running")
	ErrNotRunning        = errors.New("no session running")
	ErrProcessNotFound   = errors.New("target process not found")
	ErrTailUnrecoverable = errors.New("tail watcher unrecoverable")

	// errStopped means the run stopped watching before a helper could be
	// attached. It never leaves the package.
	errStopped = errors.New("session no longer watching")
)

// Launcher starts the target command and returns the launcher's own PID.
type Launcher interface {
	Launch(ctx context.Context, argv []string) (int, error)
}

// ProcessTable is the view of the OS process table the supervisor needs.
type ProcessTable interface {
	Find(ctx context.Context, name string, since time.Time, launcherPID int) (int, error)
	Exists(pid int) bool
	Kill(pid int) error
	KillMatching(ctx context.Context, match func(cmdline []string) bool) (int, error)
}

// Deps are the collaborators of a Supervisor. Store, Logger and Now are
// optional.
type Deps struct {
	Launcher   Launcher
	Processes  ProcessTable
	Spawner    tailer.Spawner
	Bus        *bus.Bus
	Classifier *rules.Classifier
	Store      *session.Store
	Logger     *slog.Logger
	Now        func() time.Time
}

type Supervisor struct {
	cfg        *config.Config
	launcher   Launcher
	procs      ProcessTable
	spawner    tailer.Spawner
	bus        *bus.Bus
	classifier *rules.Classifier
	store      *session.Store
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current *run
	wg      sync.WaitGroup
}

// run is the supervisor-private state of one session. sess, tail and
// forceKill are guarded by Supervisor.mu.
type run struct {
	ctx       context.Context
	cancel    context.CancelFunc
	sess      session.Session
	tail      *tailer.Process
	forceKill bool

	// Only touched from the helper pump chain, which is sequential.
	budget *restartBudget
	diag   *tailer.Diagnostics
}

func New(cfg *config.Config, deps Deps) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = rules.NewClassifier(rules.Default())
	}
	b := deps.Bus
	if b == nil {
		b = bus.New(logger)
	}
	return &Supervisor{
		cfg:        cfg,
		launcher:   deps.Launcher,
		procs:      deps.Processes,
		spawner:    deps.Spawner,
		bus:        b,
		classifier: classifier,
		store:      deps.Store,
		logger:     logger.With("component", "supervisor"),
		now:        now,
	}
}

// On subscribes handler to events named name (or bus.Wildcard).
func (s *Supervisor) On(name string, handler bus.Handler) bus.Subscription {
	return s.bus.Subscribe(name, handler)
}

// Off removes a subscription made with On.
func (s *Supervisor) Off(sub bus.Subscription) bool {
	return s.bus.Unsubscribe(sub)
}

// Snapshot returns a copy of the current session, or an Idle zero value.
func (s *Supervisor) Snapshot() session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return session.Session{State: session.Idle}
	}
	return s.current.sess.Clone()
}

// Active reports whether a session is launching or watching.
func (s *Supervisor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.sess.State.Active()
}

// Start launches the target and begins supervising it. With a session
// already active, an empty targetURL fails with ErrAlreadyRunning and a
// non-empty one replaces the running session.
func (s *Supervisor) Start(ctx context.Context, targetURL string) error {
	s.mu.Lock()
	if prev := s.current; prev != nil && prev.sess.State.Active() {
		if targetURL == "" {
			s.mu.Unlock()
			return ErrAlreadyRunning
		}
		s.mu.Unlock()
		s.end(prev, ReasonReplaced, "", false, session.Exited)
		s.mu.Lock()
		if s.current != nil && s.current.sess.State.Active() {
			s.mu.Unlock()
			return ErrAlreadyRunning
		}
	}
	r := s.newRun(targetURL)
	s.current = r
	snap := r.sess.Clone()
	s.mu.Unlock()
	s.record(snap)

	argv := s.cfg.LaunchCommand(targetURL)
	log := s.logger.With("session", r.sess.ID)
	log.Info("launching target", "argv", argv)

	launchedAt := s.now()
	launcherPID, err := s.launcher.Launch(r.ctx, argv)
	if err != nil {
		s.discard(r, "launch failed")
		return fmt.Errorf("launching %s: %w", argv[0], err)
	}

	pid, err := s.resolvePID(ctx, r, launchedAt, launcherPID)
	if err != nil {
		s.discard(r, err.Error())
		if s.forced(r) {
			s.abandonLaunch(r, launchedAt, launcherPID, 0)
		}
		return err
	}

	s.mu.Lock()
	if s.current != r || r.sess.State != session.Launching {
		force := r.forceKill
		s.mu.Unlock()
		if force {
			s.abandonLaunch(r, launchedAt, launcherPID, pid)
		}
		return fmt.Errorf("%w: session quit during launch", ErrNotRunning)
	}
	r.sess.ProcessID = pid
	r.sess.State = session.Watching
	r.sess.Watching = true
	snap = r.sess.Clone()
	s.mu.Unlock()
	s.record(snap)

	log.Info("target running", "pid", pid, "launcher_pid", launcherPID)
	s.bus.Publish(noticeEvent(EventSessionStarted, Notice{
		SessionID: snap.ID,
		TargetURL: snap.TargetURL,
		PID:       pid,
	}))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.liveness(r)
	}()
	go func() {
		defer s.wg.Done()
		s.discover(r)
	}()
	return nil
}

// Quit ends the active session. The target is killed only when forceKill
// is set. Quitting an exited session succeeds once and releases it; after
// that Quit reports ErrNotRunning until the next Start.
func (s *Supervisor) Quit(forceKill bool) error {
	s.mu.Lock()
	r := s.current
	if r == nil || r.sess.State == session.Idle {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if r.sess.State == session.Exited {
		s.current = nil
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.end(r, ReasonQuit, "", forceKill, session.Exited)
	return nil
}

// Close quits any active session, killing the target when forceKill is
// set, and waits for the background goroutines to return.
func (s *Supervisor) Close(forceKill bool) {
	if err := s.Quit(forceKill); err != nil && !errors.Is(err, ErrNotRunning) {
		s.logger.Warn("quit on close failed", "error", err)
	}
	s.wg.Wait()
}

func (s *Supervisor) newRun(targetURL string) *run {
	ctx, cancel := context.WithCancel(context.Background())
	tc := s.cfg.Tailer
	r := &run{
		ctx:    ctx,
		cancel: cancel,
		sess: session.Session{
			ID:        uuid.NewString(),
			State:     session.Launching,
			TargetURL: targetURL,
			StartedAt: s.now(),
		},
		budget: newRestartBudget(tc.RestartBackoff, tc.RestartBackoffCap, tc.MaxRestartsPerMinute),
	}
	r.diag = tailer.NewDiagnostics(tc.DiagnosticCooldown, func(err error, suppressed int) {
		s.logger.Warn("dropping malformed tail records", "session", r.sess.ID, "error", err, "suppressed", suppressed)
		n := Notice{SessionID: r.sess.ID, Error: err.Error(), Suppressed: suppressed}
		var mb *tailer.MalformedBatchError
		if errors.As(err, &mb) {
			n.Dropped = mb.Dropped
		}
		s.bus.Publish(noticeEvent(EventTailDiagnostic, n))
	})
	return r
}

// resolvePID polls the process table for the target process. The launcher
// command may hand off to an intermediary, so its own PID is only a hint.
func (s *Supervisor) resolvePID(ctx context.Context, r *run, since time.Time, launcherPID int) (int, error) {
	tc := s.cfg.Target
	for attempt := 1; attempt <= tc.PIDAttempts; attempt++ {
		pid, err := s.procs.Find(ctx, tc.ProcessName, since, launcherPID)
		if err == nil {
			return pid, nil
		}
		s.logger.Debug("target not found yet", "name", tc.ProcessName, "attempt", attempt, "error", err)
		if attempt == tc.PIDAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.ctx.Done():
			return 0, fmt.Errorf("%w: session quit during launch", ErrNotRunning)
		case <-time.After(tc.PIDInterval):
		}
	}
	return 0, fmt.Errorf("%w: %s after %d attempts", ErrProcessNotFound, tc.ProcessName, tc.PIDAttempts)
}

func (s *Supervisor) forced(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.forceKill
}

// abandonLaunch cleans up after a forced quit that landed during launch.
// The launcher is killed if still alive, and so is the target: pid when
// it was already resolved, otherwise whatever the process table turns up
// within the usual PID polling budget. Polling stops early once another
// session has started, since its client would match the same name.
func (s *Supervisor) abandonLaunch(r *run, since time.Time, launcherPID, pid int) {
	if launcherPID > 0 && launcherPID != pid && s.procs.Exists(launcherPID) {
		s.kill(launcherPID)
	}
	if pid != 0 {
		s.kill(pid)
		return
	}

	tc := s.cfg.Target
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; attempt <= tc.PIDAttempts; attempt++ {
			s.mu.Lock()
			superseded := s.current != nil && s.current != r
			s.mu.Unlock()
			if superseded {
				return
			}
			if found, err := s.procs.Find(context.Background(), tc.ProcessName, since, launcherPID); err == nil {
				s.logger.Info("killing target of abandoned launch", "session", r.sess.ID, "pid", found)
				s.kill(found)
				return
			}
			if attempt < tc.PIDAttempts {
				time.Sleep(tc.PIDInterval)
			}
		}
		s.logger.Warn("target of abandoned launch never appeared", "session", r.sess.ID, "name", tc.ProcessName)
	}()
}

// discard drops a session that never reached Watching.
func (s *Supervisor) discard(r *run, reason string) {
	s.mu.Lock()
	if s.current != r || r.sess.State != session.Launching {
		s.mu.Unlock()
		r.cancel()
		return
	}
	r.sess.End(session.Idle, s.now(), reason)
	s.current = nil
	snap := r.sess.Clone()
	s.mu.Unlock()

	r.cancel()
	s.record(snap)
}

// end moves r to a terminal state and publishes sessionExited. next is
// session.Exited for a normal end and session.Idle for an unrecoverable
// failure, which also clears the current session. It reports whether this
// call performed the transition.
func (s *Supervisor) end(r *run, reason, detail string, kill bool, next session.State) bool {
	s.mu.Lock()
	if s.current != r || !r.sess.State.Active() {
		s.mu.Unlock()
		return false
	}
	r.forceKill = kill
	r.sess.End(next, s.now(), reason)
	if next == session.Idle {
		s.current = nil
	}
	pid := r.sess.ProcessID
	tail := s.cleanupLocked(r)
	snap := r.sess.Clone()
	s.mu.Unlock()

	r.cancel()
	if tail != nil {
		if err := tail.Stop(); err != nil {
			s.logger.Warn("stopping tail helper", "pid", tail.PID, "error", err)
		}
	}
	if kill && pid != 0 {
		s.kill(pid)
	}
	s.record(snap)

	s.logger.Info("session ended", "session", snap.ID, "pid", pid, "reason", reason, "detail", detail)
	s.bus.Publish(noticeEvent(EventSessionExited, Notice{
		SessionID: snap.ID,
		TargetURL: snap.TargetURL,
		PID:       pid,
		Path:      snap.LogFilePath,
		Reason:    reason,
		Error:     detail,
	}))
	return true
}

// cleanupLocked detaches the helper and stops watching without touching
// the target. The caller stops the returned helper outside the lock.
func (s *Supervisor) cleanupLocked(r *run) *tailer.Process {
	r.sess.Watching = false
	tail := r.tail
	r.tail = nil
	return tail
}

// fail ends r as unrecoverable: the target is killed and the supervisor
// returns to Idle.
func (s *Supervisor) fail(r *run, reason string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if s.end(r, reason, detail, true, session.Idle) {
		s.logger.Error("session failed", "session", r.sess.ID, "reason", reason, "error", err)
	}
}

func (s *Supervisor) kill(pid int) {
	if err := s.procs.Kill(pid); err != nil {
		s.logger.Warn("killing target", "pid", pid, "error", err)
	}
}

func (s *Supervisor) watching(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == r && r.sess.Watching
}

func (s *Supervisor) record(snap session.Session) {
	if s.store != nil {
		s.store.Update(snap)
	}
}

func (s *Supervisor) liveness(r *run) {
	ticker := time.NewTicker(s.cfg.Tailer.LivenessInterval)
	defer ticker.Stop()

	s.mu.Lock()
	pid := r.sess.ProcessID
	s.mu.Unlock()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if !s.procs.Exists(pid) {
				s.end(r, ReasonProcessExited, "", false, session.Exited)
				return
			}
		}
	}
}

// discover finds the session's log file, replays what it already holds,
// then attaches a helper at the first unread byte.
func (s *Supervisor) discover(r *run) {
	lc := s.cfg.Logs
	path, err := locator.Locate(r.ctx, locator.Options{
		Dir:         lc.Dir,
		Pattern:     lc.Pattern,
		MaxAge:      lc.MaxAge,
		MaxAttempts: lc.MaxAttempts,
		RetryDelay:  lc.RetryDelay,
		Now:         s.now,
	})
	if err != nil {
		if r.ctx.Err() == nil {
			s.fail(r, ReasonLogNotFound, err)
		}
		return
	}

	s.mu.Lock()
	if s.current != r || !r.sess.Watching {
		s.mu.Unlock()
		return
	}
	r.sess.LogFilePath = path
	snap := r.sess.Clone()
	s.mu.Unlock()
	s.record(snap)

	s.logger.Info("log file found", "session", snap.ID, "path", path)
	s.bus.Publish(noticeEvent(EventLogFileFound, Notice{SessionID: snap.ID, PID: snap.ProcessID, Path: path}))

	data, err := os.ReadFile(path)
	if err != nil {
		s.fail(r, ReasonLogUnreadable, err)
		return
	}
	// A trailing line without its newline is left for the helper.
	end := bytes.LastIndexByte(data, '\n') + 1
	if end > 0 && s.watching(r) {
		lines := strings.Split(strings.TrimSuffix(string(data[:end]), "\n"), "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSuffix(line, "\r")
		}
		s.bus.PublishAll(s.classifier.Classify(lines))
	}

	if err := s.startTail(r, path, int64(end)); err != nil && !errors.Is(err, errStopped) {
		s.fail(r, ReasonTailUnavailable, err)
	}
}

// startTail spawns a helper for r. watching is checked under the lock
// immediately before the spawn so a concurrent Quit always wins.
func (s *Supervisor) startTail(r *run, path string, offset int64) error {
	s.mu.Lock()
	if s.current != r || !r.sess.Watching {
		s.mu.Unlock()
		return errStopped
	}
	p, err := s.spawner.Spawn(r.ctx, path, offset)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	r.tail = p
	s.mu.Unlock()

	s.logger.Debug("tail helper started", "session", r.sess.ID, "pid", p.PID, "path", path, "offset", offset)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(r, p, path)
	}()
	return nil
}

// pump forwards one helper's output to the bus and handles its exit.
func (s *Supervisor) pump(r *run, p *tailer.Process, path string) {
	var dec tailer.Decoder
	for chunk := range p.Data {
		lines, err := dec.Decode(chunk)
		s.deliver(r, lines, err)
	}
	lines, err := dec.Flush()
	s.deliver(r, lines, err)

	code := -1
	if c, ok := <-p.Done; ok {
		code = c
	}
	s.handleTailExit(r, p, path, code)
}

func (s *Supervisor) deliver(r *run, lines []string, err error) {
	if err != nil {
		r.diag.Report(err)
	}
	if len(lines) == 0 || !s.watching(r) {
		return
	}
	s.bus.PublishAll(s.classifier.Classify(lines))
}

func (s *Supervisor) handleTailExit(r *run, p *tailer.Process, path string, code int) {
	log := s.logger.With("session", r.sess.ID, "helper_pid", p.PID, "exit_code", code)

	s.mu.Lock()
	if r.tail == p {
		r.tail = nil
	}
	s.mu.Unlock()

	if !s.watching(r) {
		log.Debug("tail helper exited after stop")
		return
	}
	log.Warn("tail helper exited unexpectedly")

	delay, ok := r.budget.next(s.now())
	if !ok {
		s.fail(r, ReasonTailUnavailable, fmt.Errorf("%w: %d restarts in the last %s",
			ErrTailUnrecoverable, r.budget.recent(), restartWindow))
		return
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	if n, err := s.procs.KillMatching(r.ctx, tailer.HelperMatcher(path)); err != nil {
		log.Warn("sweeping stray tail helpers", "error", err)
	} else if n > 0 {
		log.Info("killed stray tail helpers", "count", n)
	}

	if err := s.startTail(r, path, -1); err != nil {
		if !errors.Is(err, errStopped) {
			s.fail(r, ReasonTailUnavailable, err)
		}
		return
	}

	s.mu.Lock()
	r.sess.Restarts++
	attempt := r.sess.Restarts
	snap := r.sess.Clone()
	s.mu.Unlock()
	s.record(snap)

	exit := code
	s.bus.Publish(noticeEvent(EventTailRestarted, Notice{
		SessionID: snap.ID,
		PID:       snap.ProcessID,
		Path:      path,
		ExitCode:  &exit,
		Attempt:   attempt,
	}))
}
