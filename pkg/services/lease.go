package services

import "sync"

// appLease serializes onboarding work per application name. The
// existence gate and the final document write are not atomic, so two
// concurrent requests for the same app could otherwise interleave
// between them.
type appLease struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newAppLease() *appLease {
	return &appLease{held: make(map[string]struct{})}
}

// acquire claims the lease for the named app. It reports false when
// another request already holds it.
func (l *appLease) acquire(appName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[appName]; ok {
		return false
	}
	l.held[appName] = struct{}{}
	return true
}

func (l *appLease) release(appName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, appName)
}
