// Package shell owns the persistent child shell and the framing protocol
// used to talk to it.
//
// A shell exposes no request boundaries on its pipes, so every request is
// followed by echo statements that print a marker line once the request
// body has finished. Readers consume a channel line by line until they see
// that marker.
//
// Components:
//   - Sentinel: marker literals, per-request nonces, request framing
//   - Reader: line pump for one output pipe with sentinel-bounded Drain
//   - Session: one shell process and its three pipes
//   - Manager: the session slot; pins a session per request, restarts it
//
// Example Usage:
//
//	mgr := shell.NewManager(shell.Options{Shell: "/bin/bash", Logger: log})
//	if err := mgr.Start(); err != nil {
//		return err
//	}
//	defer mgr.Terminate()
//
//	err := mgr.Exchange(ctx, func(s *shell.Session) error {
//		end := shell.NewSentinel(shell.EndOfDirectory, shell.Stdout)
//		if err := s.Send(shell.Frame("pwd", end)...); err != nil {
//			return err
//		}
//		lines, err := s.Drain(ctx, end, nil)
//		...
//	})
//
// Limitations: a marker line can still collide with real output in theory;
// commands that read stdin can swallow the marker statements; a command with
// unbalanced quotes leaves the shell waiting for more input until the user
// interrupts.
package shell
