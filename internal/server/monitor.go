package server

import (
	"fmt"
	"sync"

	"github.com/danmuck/verse/internal/protocol"
)

// Only one server may run per process.
var running struct {
	mu  sync.Mutex
	srv *Server
}

// RunningInstance returns the running server, or nil.
func RunningInstance() *Server {
	running.mu.Lock()
	defer running.mu.Unlock()
	return running.srv
}

func claimRunning(s *Server) error {
	running.mu.Lock()
	defer running.mu.Unlock()
	if running.srv != nil {
		return fmt.Errorf("%w: another server is already running", protocol.ErrServer)
	}
	running.srv = s
	return nil
}

func isRunning(s *Server) bool {
	running.mu.Lock()
	defer running.mu.Unlock()
	return running.srv == s
}

func releaseRunning(s *Server) {
	running.mu.Lock()
	defer running.mu.Unlock()
	if running.srv == s {
		running.srv = nil
	}
}
