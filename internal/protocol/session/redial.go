package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observe"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/runtime"
)

// RedialConfig describes the peer a Redialer keeps a session with.
type RedialConfig struct {
	Address  string
	User     string
	Password string
	Expected protocol.HostID
	Session  Config
	// Observers are attached to every session the Redialer creates.
	Observers []any
}

// Redialer keeps one session to a peer alive. Terminated is absorbing, so
// every attempt uses a fresh Session; attempts are spaced by backoff.
type Redialer struct {
	rt  *runtime.Runtime
	cfg RedialConfig
	rng *rand.Rand

	mu      sync.Mutex
	current *Session
	attempt int
	nextAt  time.Time
	// backoffPending is set by a termination; the next Tick fixes nextAt on
	// the caller's clock.
	backoffPending bool
	stopped        bool
}

func NewRedialer(rt *runtime.Runtime, cfg RedialConfig) *Redialer {
	cfg.Session = cfg.Session.WithDefaults()
	return &Redialer{
		rt:  rt,
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Session returns the most recent session, if any.
func (d *Redialer) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Attempt is the number of consecutive failed attempts.
func (d *Redialer) Attempt() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempt
}

// Tick starts a new attempt when none is live and the backoff has elapsed.
// It reports whether an attempt was started.
func (d *Redialer) Tick(now time.Time) (bool, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false, nil
	}
	if d.current != nil && d.current.State() != StateTerminated {
		d.mu.Unlock()
		return false, nil
	}
	if d.backoffPending {
		d.backoffPending = false
		d.nextAt = now.Add(d.cfg.Session.Backoff.Delay(d.attempt, d.rng))
	}
	if now.Before(d.nextAt) {
		d.mu.Unlock()
		return false, nil
	}
	s := New(d.rt, d.cfg.Address)
	d.current = s
	d.mu.Unlock()

	s.AddObserver(d)
	for _, obs := range d.cfg.Observers {
		s.AddObserver(obs)
	}
	if err := s.ConnectExpecting(d.cfg.User, d.cfg.Password, d.cfg.Expected); err != nil {
		observe.StopObserving(d, s)
		d.mu.Lock()
		d.current = nil
		d.attempt++
		d.nextAt = now.Add(d.cfg.Session.Backoff.Delay(d.attempt, d.rng))
		d.mu.Unlock()
		return false, err
	}
	return true, nil
}

// Stop disconnects the live session and prevents further attempts.
func (d *Redialer) Stop(message string) error {
	d.mu.Lock()
	d.stopped = true
	s := d.current
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Disconnect(message)
}

func (d *Redialer) OnConnectAccept(*node.Node, string, protocol.HostID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempt = 0
	d.nextAt = time.Time{}
	d.backoffPending = false
}

func (d *Redialer) OnConnectTerminate(string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempt++
	d.backoffPending = true
}
