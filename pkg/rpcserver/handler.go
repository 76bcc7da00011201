package rpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/smartcontractkit/solana-txsender/pkg/codec"
	"github.com/smartcontractkit/solana-txsender/pkg/relay"
	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

// JSON-RPC 2.0 error codes returned by the handler. Parse, request and method
// errors are produced by the JSON-RPC server itself.
const (
	CodeInvalidParams = -32602
	CodeInternalError = -32603
)

// InvalidRequestError reports a submission rejected on its content, worded the way Solana nodes do.
type InvalidRequestError struct {
	Err error
}

func (e *InvalidRequestError) Error() string {
	return "Invalid Request: " + e.Err.Error()
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// InternalError hides the cause of a server side failure from the caller.
type InternalError struct{}

func (*InternalError) Error() string {
	return "Internal error"
}

func rpcErrors() jsonrpc.Errors {
	errs := jsonrpc.NewErrors()
	errs.Register(CodeInvalidParams, new(*InvalidRequestError))
	errs.Register(CodeInternalError, new(*InternalError))
	return errs
}

// errorCode returns the JSON-RPC code err is reported with, 0 for success.
func errorCode(err error) int {
	var invalid *InvalidRequestError
	var internal *InternalError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &invalid):
		return CodeInvalidParams
	case errors.As(err, &internal):
		return CodeInternalError
	default:
		return 1
	}
}

// handler is registered with the JSON-RPC server. Its exported methods are
// served as health and sendTransaction.
type handler struct {
	lggr   logger.SugaredLogger
	sender Sender
}

func (h *handler) Health(ctx context.Context) (string, error) {
	return h.sender.Health(ctx), nil
}

// SendTransaction takes the encoded transaction and the config object, which may be null.
func (h *handler) SendTransaction(ctx context.Context, encoded string, params *relay.SendTransactionParams) (string, error) {
	start := time.Now()
	defer observeSendTransaction(start)

	var opts relay.SendTransactionParams
	if params != nil {
		opts = *params
	}

	signature, err := h.sender.SendTransaction(ctx, encoded, opts)
	if err != nil {
		if rejected(err) {
			return "", &InvalidRequestError{Err: err}
		}
		h.lggr.Errorw("failed to accept transaction", "err", err)
		return "", &InternalError{}
	}
	return signature, nil
}

// rejected reports whether err is the caller's fault rather than the server's.
func rejected(err error) bool {
	for _, target := range []error{
		relay.ErrPreflightUnsupported,
		codec.ErrUnsupportedEncoding,
		codec.ErrInvalidTransaction,
		txm.ErrDuplicateSignature,
		txm.ErrEmptyPayload,
		txm.ErrMissingSignature,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
