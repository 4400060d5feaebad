package rpcsvc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"promphub.io/market/chain"
	"promphub.io/market/market"
)

// Marketplace errors travel in the status message as "market <code>: <message>"
// so the client can rebuild the *market.Error.
const errPrefix = "market "

func statusCode(k market.Kind) codes.Code {
	switch k {
	case market.KindPrecondition:
		return codes.FailedPrecondition
	case market.KindArithmetic:
		return codes.OutOfRange
	case market.KindConfiguration:
		return codes.FailedPrecondition
	case market.KindConflict:
		return codes.Aborted
	case market.KindDecode:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var me *market.Error
	switch {
	case errors.As(err, &me):
		return status.Error(statusCode(me.Kind), fmt.Sprintf("%s%d: %s", errPrefix, uint32(me.Code), me.Message))
	case errors.Is(err, chain.ErrReadOnly):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	msg := st.Message()
	if rest, found := strings.CutPrefix(msg, errPrefix); found {
		if num, detail, ok := strings.Cut(rest, ": "); ok {
			if code, perr := strconv.ParseUint(num, 10, 32); perr == nil {
				return market.FromCode(market.Code(code), detail)
			}
		}
	}
	if msg == chain.ErrReadOnly.Error() {
		return chain.ErrReadOnly
	}
	return err
}
