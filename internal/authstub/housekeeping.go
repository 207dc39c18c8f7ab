package authstub

import "time"

// StartHousekeeping sweeps expired tokens, links, codes and challenges every
// interval until StopHousekeeping is called.
func (s *Server) StartHousekeeping(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-stop:
				return
			}
		}
	}()
	s.logger.Info("housekeeping started", "interval", interval)
}

// StopHousekeeping stops the sweeper and waits for it to exit.
func (s *Server) StopHousekeeping() {
	s.mu.Lock()
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Info("housekeeping stopped")
}

// sweep drops everything past its expiry and reports how much went.
func (s *Server) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, m := range []map[string]grant{s.access, s.refresh, s.links, s.oauthCodes} {
		for k, g := range m {
			if !now.Before(g.expiresAt) {
				delete(m, k)
				removed++
			}
		}
	}
	for k, ch := range s.challenges {
		if !now.Before(ch.expiresAt) {
			delete(s.challenges, k)
			removed++
		}
	}

	s.logger.Debug("housekeeping sweep completed", "removed", removed)
	return removed
}
