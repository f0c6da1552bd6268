// Package watch observes project source trees and turns qualifying
// filesystem changes into build-then-sync cycles. Each project gets its own
// ChangeWatcher and cycle worker; the Supervisor runs them all until the
// context is cancelled.
package watch
