package transport

import (
	"net/http"

	"github.com/roach88/brp/internal/brp"
)

// StatusFor maps a response to an HTTP status code.
func StatusFor(resp brp.Response) int {
	e := resp.Err()
	if e == nil {
		return http.StatusOK
	}
	switch e.Code {
	case brp.CodeEntityNotFound, brp.CodeComponentNotFound, brp.CodeAssetNotFound:
		return http.StatusNotFound
	case brp.CodeTimeout:
		return http.StatusRequestTimeout
	case brp.CodeInternalError:
		return http.StatusInternalServerError
	case brp.CodeUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusBadRequest
	}
}
