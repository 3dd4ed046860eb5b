package renderer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// WatchFocus refetches the session every time focus fires, until ctx is done or the
// next WatchFocus call replaces this watcher. It does nothing when refetch on focus is
// disabled.
func (n *Negotiator) WatchFocus(ctx context.Context, focus <-chan struct{}, sessions SessionFetcher) {
	if !n.opts.RefetchSessionOnFocus || sessions == nil {
		return
	}
	watchCtx := n.state.freshFocusContext(ctx)

	n.state.spawn("focus", func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-focus:
				if !ok || watchCtx.Err() != nil {
					return
				}
				us, err := sessions.Session(watchCtx)
				if err != nil {
					if watchCtx.Err() == nil {
						log.Debug().Err(err).Msg("no session on focus")
						n.state.SetSession(nil)
					}
					continue
				}
				n.state.SetSession(&us)
			}
		}
	})
}
