// Package router is the single entry point of the engine: it forwards an
// ordered list of executions and knows nothing about protocols.
package router

import (
	"fmt"
	"math/big"

	"github.com/alejandrodnm/nftagg/internal/chain"
	"github.com/alejandrodnm/nftagg/internal/codec"
	"github.com/alejandrodnm/nftagg/internal/domain"
)

// Router forwards executions in order. Any failing execution fails the whole
// call. It never sweeps, refunds or skips.
type Router struct{}

// New returns router code.
func New() *Router {
	return &Router{}
}

func (r *Router) Name() string { return "Router" }

func (r *Router) Call(env *chain.Env, input []byte) ([]byte, error) {
	m, data, err := codec.Method(codec.RouterABI, input)
	if err != nil {
		return nil, err
	}
	var call codec.ExecuteCall
	if err := codec.Unpack(m, data, &call); err != nil {
		return nil, err
	}
	return nil, r.execute(env, call.Executions)
}

func (r *Router) execute(env *chain.Env, execs []codec.ExecutionArg) error {
	total := new(big.Int)
	for _, e := range execs {
		total.Add(total, e.Value)
	}
	if total.Cmp(env.Value) != 0 {
		return fmt.Errorf("router.execute: %w: sent %s, executions carry %s",
			domain.ErrInsufficientValue, env.Value, total)
	}

	for i, e := range execs {
		if _, err := env.Call(e.Target, e.Value, e.Data); err != nil {
			return fmt.Errorf("router.execute: execution %d to %s: %w", i, e.Target.Hex(), err)
		}
	}
	return nil
}
