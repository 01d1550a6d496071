package supervisor

import "context"

// scopeLock is a one-slot semaphore shared by the replacing spawns of one
// scope. refs counts holders and waiters so idle scopes are dropped.
type scopeLock struct {
	sem  chan struct{}
	refs int
}

// lockScope blocks until the caller owns scopeKey or ctx ends. The returned
// func releases ownership.
func (s *Supervisor) lockScope(ctx context.Context, scopeKey string) (func(), error) {
	s.scopeMu.Lock()
	l, ok := s.scopeLocks[scopeKey]
	if !ok {
		l = &scopeLock{sem: make(chan struct{}, 1)}
		s.scopeLocks[scopeKey] = l
	}
	l.refs++
	s.scopeMu.Unlock()

	drop := func() {
		s.scopeMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.scopeLocks, scopeKey)
		}
		s.scopeMu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			drop()
		}, nil
	case <-ctx.Done():
		drop()
		return nil, ctx.Err()
	}
}
