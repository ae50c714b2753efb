package android

import (
	"context"
	"sync"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// locationLoop keeps re-posting a mock location. The device discards stale
// fixes, so a single post does not stick.
type locationLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startLocationLoop calls post every interval until stopped.
func startLocationLoop(interval time.Duration, post func(ctx context.Context) error) *locationLoop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &locationLoop{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := post(ctx); err != nil && ctx.Err() == nil {
					logger.Debug("re-post location: %v", err)
				}
			}
		}
	}()
	return l
}

// stop cancels the loop and waits for it to exit.
func (l *locationLoop) stop() {
	l.cancel()
	<-l.done
}

// locationState guards the single active loop of a driver.
type locationState struct {
	mu   sync.Mutex
	loop *locationLoop
}

func (s *locationState) replace(l *locationLoop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		s.loop.stop()
	}
	s.loop = l
}

func (s *locationState) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}
