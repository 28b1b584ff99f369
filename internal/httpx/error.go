package httpx

import (
	"errors"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// SafeErrMsg renders an error for a client-facing body. Sentinels from the
// decision taxonomy keep their message; anything else collapses to a generic
// one so backend detail never reaches the caller.
func SafeErrMsg(err error) string {
	if err == nil {
		return ""
	}
	var e types.Err
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}
