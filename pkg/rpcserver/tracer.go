package rpcserver

import (
	"reflect"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
)

// newTracer logs and counts every dispatched call. Calls to unknown methods
// never reach it, which keeps the method label bounded.
func newTracer(lggr logger.SugaredLogger) jsonrpc.Tracer {
	return func(method string, _ []reflect.Value, results []reflect.Value, err error) {
		if err == nil {
			err = resultError(results)
		}
		observeRequest(method, err)
		if err != nil {
			lggr.Debugw("rpc call failed", "method", method, "code", errorCode(err), "err", err)
			return
		}
		lggr.Debugw("rpc call", "method", method)
	}
}

// resultError returns the error a handler method returned as its last result.
func resultError(results []reflect.Value) error {
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if !last.IsValid() {
		return nil
	}
	err, _ := last.Interface().(error)
	return err
}
