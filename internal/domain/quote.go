package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type RouteKind uint8

const (
	RouteNone RouteKind = iota
	RouteDirectV2
	RouteTwoHopV2
	RouteSingleV3
)

func (k RouteKind) String() string {
	switch k {
	case RouteDirectV2:
		return "direct_v2"
	case RouteTwoHopV2:
		return "two_hop_v2"
	case RouteSingleV3:
		return "single_v3"
	default:
		return "none"
	}
}

// Route is one executable way to fill a swap. The concrete types are
// DirectV2Route, TwoHopV2Route and SingleV3Route; callers switch on the type.
type Route interface {
	Kind() RouteKind
	AmountOut() *big.Int
	Path() []common.Address
	isRoute()
}

type DirectV2Route struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
	Out      *big.Int
	Pair     *Reserves
}

func (r *DirectV2Route) Kind() RouteKind { return RouteDirectV2 }
func (r *DirectV2Route) AmountOut() *big.Int { return r.Out }
func (r *DirectV2Route) Path() []common.Address {
	return []common.Address{r.TokenIn, r.TokenOut}
}
func (*DirectV2Route) isRoute() {}

type TwoHopV2Route struct {
	TokenIn   common.Address
	Bridge    common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	MidAmount *big.Int
	Out       *big.Int
	First     *Reserves
	Second    *Reserves
}

func (r *TwoHopV2Route) Kind() RouteKind { return RouteTwoHopV2 }
func (r *TwoHopV2Route) AmountOut() *big.Int { return r.Out }
func (r *TwoHopV2Route) Path() []common.Address {
	return []common.Address{r.TokenIn, r.Bridge, r.TokenOut}
}
func (*TwoHopV2Route) isRoute() {}

type SingleV3Route struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	AmountIn          *big.Int
	Out               *big.Int
	SqrtPriceX96After *big.Int
	// GasEstimate is zero when the quote came from a v1 quoter.
	GasEstimate uint64
}

func (r *SingleV3Route) Kind() RouteKind { return RouteSingleV3 }
func (r *SingleV3Route) AmountOut() *big.Int { return r.Out }
func (r *SingleV3Route) Path() []common.Address {
	return []common.Address{r.TokenIn, r.TokenOut}
}
func (*SingleV3Route) isRoute() {}

// Candidate is the outcome of one route lookup. Route is nil when the route is
// unavailable; Err is set only for read failures, never for missing liquidity.
type Candidate struct {
	Kind  RouteKind
	Route Route
	Err   error
}

func (c Candidate) Available() bool {
	return c.Err == nil && c.Route != nil && c.Route.AmountOut() != nil && c.Route.AmountOut().Sign() > 0
}

type Candidates struct {
	Direct Candidate
	TwoHop Candidate
	V3     Candidate
}

func (c Candidates) All() []Candidate {
	return []Candidate{c.Direct, c.TwoHop, c.V3}
}

// Errs returns the read failures among the candidates.
func (c Candidates) Errs() []error {
	var errs []error
	for _, cand := range c.All() {
		if cand.Err != nil {
			errs = append(errs, cand.Err)
		}
	}
	return errs
}

type QuoteResult struct {
	Fingerprint string
	Sequence    uint64

	TokenIn  Token
	TokenOut Token
	AmountIn *big.Int

	Best       Route
	Candidates Candidates

	MinOut      *big.Int
	SlippageBps uint16

	PriceImpactBps   uint16
	PriceImpactKnown bool
}
