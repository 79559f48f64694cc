// Package notifier turns course changes into notification documents and
// delivers them to every destination group.
//
// # Fan-out
//
// Fanout sends one Notice to each group concurrently. Groups are isolated:
// a missing channel or a failing send is recorded in the Report for that
// group only. Sends share one token-bucket limiter and retry with
// exponential backoff and jitter.
//
// # Dedup
//
// A Notice may carry a dedup window. The same notice for the same group is
// suppressed until the window ends. Suppression state lives in memory and,
// when persist_dedup is set, in the configured storage driver so it
// survives restarts.
package notifier
