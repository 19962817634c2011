package push

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller drives one topic's change-detected push loop: on each tick
// it calls its Source, and pushes the snapshot to every subscriber
// only if it differs from the last one sent. Grounded on
// original_source's per-channel `while True: sleep(interval); ...;
// if current_data != last_data: send` loops.
type Poller struct {
	topic    Topic
	interval time.Duration
	source   Source
	hub      *Hub
	log      *zap.Logger
}

// NewPoller builds a Poller for topic, polling source every interval.
func NewPoller(topic Topic, interval time.Duration, source Source, hub *Hub, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{topic: topic, interval: interval, source: source, hub: hub, log: log}
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := p.source()
			if err != nil {
				if p.log != nil {
					p.log.Warn("push source failed", zap.String("topic", string(p.topic)), zap.Error(err))
				}
				continue
			}
			if err := p.hub.pushIfChanged(p.topic, data); err != nil && p.log != nil {
				p.log.Warn("push snapshot encode failed", zap.String("topic", string(p.topic)), zap.Error(err))
			}
		}
	}
}

// HeartbeatLoop sends a ping to every subscriber of topic every
// interval, disconnecting any connection that hasn't ponged within
// 2×interval.
func HeartbeatLoop(ctx context.Context, hub *Hub, topic Topic, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.pingAll(topic, 2*interval)
		}
	}
}
