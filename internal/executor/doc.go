// Package executor implements the three request kinds dwim sends to its
// persistent shell: running a command, asking for the working directory,
// and asking for a short repository status.
//
// Every request is framed with per-request sentinels and answered
// synchronously. A command's stdout and stderr are drained concurrently so
// a chatty stderr cannot fill its pipe while stdout is being read.
//
// Recovery:
//   - cancellation returns ErrCancelled and discards partial output; the
//     caller that cancelled owns the restart
//   - a pipe ending before its sentinel restarts the shell
//   - a dead shell found before anything was written is restarted and the
//     request is retried once
//
// Probes never fail the loop: QueryStatus degrades to StatusUnknown, and
// callers render a failed QueryDirectory as a placeholder.
package executor
