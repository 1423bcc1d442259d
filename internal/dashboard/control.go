package dashboard

// illegalTransitionError signals a control action that doesn't apply to
// the session's current state (HTTP layer maps this to 409, spec §6.2).
// Pause, Resume and End return one with a reason when the requested
// action does not apply; handlers_sessions.go's isIllegalTransition
// recognizes it by type.
type illegalTransitionError struct{ reason string }

func (e *illegalTransitionError) Error() string { return e.reason }

// Pause flags a session paused in the registry overlay; the dashboard
// reports the flag and IsPaused returns it. No Loop code reads the flag,
// so a running Loop carries on with its current task.
func (r *Registry) Pause(sessionID string) error {
	t, err := r.taskForSession(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ov := r.overlayFor(sessionID)
	if ov.ended {
		return &illegalTransitionError{reason: "session already ended"}
	}
	if ov.paused {
		return &illegalTransitionError{reason: "session already paused"}
	}
	ov.paused = true
	_ = t // task fetched only to confirm the session currently has a live claim
	return nil
}

// Resume clears a session's paused flag.
func (r *Registry) Resume(sessionID string) error {
	if _, err := r.taskForSession(sessionID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ov := r.overlayFor(sessionID)
	if ov.ended {
		return &illegalTransitionError{reason: "session already ended"}
	}
	if !ov.paused {
		return &illegalTransitionError{reason: "session is not paused"}
	}
	ov.paused = false
	return nil
}

// SkipTask fails the session's current task with an operator-initiated
// reason via tasks.Manager.Fail: the task's status becomes failed and its
// acceptance criteria are reset. A failed task is not returned to the
// backlog; eligible-task selection only picks pending tasks.
func (r *Registry) SkipTask(sessionID string) error {
	t, err := r.taskForSession(sessionID)
	if err != nil {
		return err
	}
	return r.tasksMgr.Fail(t.ID, sessionID, "skipped by operator via dashboard")
}

// End flags a session ended in the registry overlay. It does not revoke
// the Loop's claim lease directly (only the claim owner releases its own
// lease); the flag is surfaced to the dashboard immediately and the
// claim naturally expires once the Loop's heartbeat stops.
func (r *Registry) End(sessionID string) error {
	if _, err := r.taskForSession(sessionID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ov := r.overlayFor(sessionID)
	if ov.ended {
		return &illegalTransitionError{reason: "session already ended"}
	}
	ov.ended = true
	return nil
}

// IsPaused reports whether a session's paused flag is set. A Loop can
// poll this (injected as a callback) to honor an operator pause request
// between phases.
func (r *Registry) IsPaused(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ov, ok := r.overlay[sessionID]
	return ok && ov.paused
}
