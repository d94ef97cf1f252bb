package browser

import (
	"sync"
)

// Session owns one page plus whatever must be torn down with it.
type Session struct {
	page    Page
	closeFn func() error

	once     sync.Once
	closeErr error
}

// NewSession wraps page; closeFn releases the browser behind it.
func NewSession(page Page, closeFn func() error) *Session {
	return &Session{page: page, closeFn: closeFn}
}

// Page returns the session's tab.
func (s *Session) Page() Page {
	return s.page
}

// Close tears the session down. Only the first call does any work; later
// calls return the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}
