package trust

import (
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/rs/zerolog"
)

// Recorder is a session observer that remembers a server's host id the
// first time a session to it is accepted.
type Recorder struct {
	store *Store
	log   zerolog.Logger
}

func NewRecorder(store *Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: logger.With().Str("component", "trust").Logger()}
}

func (r *Recorder) OnConnectAccept(_ *node.Node, address string, hostID protocol.HostID) {
	if hostID.IsWildcard() {
		return
	}
	_, known, err := r.store.Expected(address)
	if err != nil {
		r.log.Warn().Str("peer", address).Err(err).Msg("trust.Recorder lookup")
		return
	}
	if known {
		if err := r.store.Check(address, hostID); err != nil {
			r.log.Warn().Str("peer", address).Err(err).Msg("trust.Recorder accepted unexpected host id")
		}
		return
	}
	if err := r.store.Remember(address, hostID); err != nil {
		r.log.Warn().Str("peer", address).Err(err).Msg("trust.Recorder remember")
		return
	}
	r.log.Info().Str("peer", address).Str("fingerprint", Fingerprint(hostID)).Msg("trust recorded new host")
}
