package server

import (
	"time"

	"github.com/snapsync/snapsync-go/internal/tui"
)

// Status renders the current hub state into a tui.Status snapshot,
// suitable for feeding a terminal view's update channel.
func (s *Server) Status(startedAt time.Time) tui.Status {
	f, name, _ := s.hub.StreamInfo()
	sessions := s.hub.Sessions()

	infos := make([]tui.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, tui.SessionInfo{Mac: sess.Mac(), Active: sess.StreamActive()})
	}

	return tui.Status{
		ServerID:   s.serverID,
		Addr:       s.cfg.ListenAddr,
		Uptime:     time.Since(startedAt),
		Codec:      string(name),
		SampleRate: f.Rate,
		Sessions:   infos,
	}
}
