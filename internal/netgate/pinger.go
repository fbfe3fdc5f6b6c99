// internal/netgate/pinger.go
//
// Pinger turns reachability of the song source host into the gate's
// connectivity signal. It issues a HEAD request on a fixed interval;
// any response below 500 counts as connected.

package netgate

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Pinger periodically checks a URL and feeds the result to a Gate.
type Pinger struct {
	Gate     *Gate
	URL      string
	Interval time.Duration
	Client   *http.Client
	Logger   zerolog.Logger
}

// Ping performs a single check and updates the gate.
func (p *Pinger) Ping(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	ok := false
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err == nil {
		res, err := client.Do(req)
		if err == nil {
			res.Body.Close()
			ok = res.StatusCode < http.StatusInternalServerError
		} else {
			p.Logger.Debug().Err(err).Str("url", p.URL).Msg("ping failed")
		}
	}
	if p.Gate.Set(ok) {
		p.Logger.Info().Bool("connected", ok).Msg("connectivity changed")
	}
	return ok
}

// Run pings immediately and then every Interval until ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	p.Ping(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Ping(ctx)
		}
	}
}
