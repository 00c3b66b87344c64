package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling counter.
var Stats = &stats{}

type stats struct {
	MsgsSent   atomic.Int64 // signaling messages written to the channel
	MsgsRecv   atomic.Int64 // signaling messages received from the channel
	MsgsQueued atomic.Int64 // messages buffered while the channel was down
	Reconnects atomic.Int64 // reconnect attempts since process start
}

func (s *stats) AddSent()      { s.MsgsSent.Add(1) }
func (s *stats) AddRecv()      { s.MsgsRecv.Add(1) }
func (s *stats) AddQueued()    { s.MsgsQueued.Add(1) }
func (s *stats) AddReconnect() { s.Reconnects.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every 30 seconds while there is activity. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevReconn int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.MsgsSent.Load()
				recv := Stats.MsgsRecv.Load()
				reconn := Stats.Reconnects.Load()

				if sent != prevSent || recv != prevRecv || reconn != prevReconn {
					pterm.DefaultLogger.Info(fmt.Sprintf(
						"Signaling — sent: %d | recv: %d | queued: %d | reconnects: %d",
						sent, recv, Stats.MsgsQueued.Load(), reconn,
					))
				}

				prevSent = sent
				prevRecv = recv
				prevReconn = reconn

			case <-ctx.Done():
				return
			}
		}
	}()
}
