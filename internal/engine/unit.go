package engine

import (
	"context"

	"github.com/roach88/alloclower/internal/compiler"
	"github.com/roach88/alloclower/internal/deps"
	"github.com/roach88/alloclower/internal/lowering"
)

// LowerUnit runs create-lowering over a compiled unit, ahead of any
// reducers given in opts. It returns the run result together with the
// ledger the run filled. The unit's graph is rewritten in place.
func LowerUnit(ctx context.Context, unit *compiler.Unit, ids IDGenerator, limits lowering.Limits, opts ...EngineOption) (*Result, *deps.Ledger, error) {
	e := New(unit.Graph, ids, opts...)
	ledger := deps.NewLedger()
	lw := lowering.New(unit.Graph, unit.Broker, unit.Native, ledger,
		lowering.WithLimits(limits),
		lowering.WithLogger(e.logger.With("unit", unit.Name)),
	)
	e.reducers = append([]Reducer{lw}, e.reducers...)

	res, err := e.Run(ctx)
	return res, ledger, err
}
