package router

import (
	"errors"

	"github.com/hxuan190/swap-engine/internal/domain"
)

var ErrNoRoute = errors.New("no route found")

// SelectBestRoute picks the route to execute from the candidate lookups.
//
// A usable concentrated-liquidity quote always wins, whatever its size. Otherwise the
// constant-product route with the strictly larger output wins and ties stay on the direct
// pair. It returns nil when no candidate has a positive output.
func SelectBestRoute(c domain.Candidates) domain.Route {
	if c.V3.Available() {
		return c.V3.Route
	}

	var best domain.Route
	for _, cand := range []domain.Candidate{c.Direct, c.TwoHop} {
		if !cand.Available() {
			continue
		}
		if best == nil || cand.Route.AmountOut().Cmp(best.AmountOut()) > 0 {
			best = cand.Route
		}
	}
	return best
}
