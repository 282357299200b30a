package errors

import (
	"encoding/json"
	"net/http"
)

var (
	HttpMap = map[Code]int{
		CodeInternal:          http.StatusInternalServerError,
		CodeInvalidArgument:   http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeAborted:           http.StatusConflict,
		CodeUnavailable:       http.StatusServiceUnavailable,
		CodeResourceExhausted: http.StatusTooManyRequests,
	}
)

func httpStatus(code Code) int {
	if status, ok := HttpMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// JSONResponse writes err to w as a JSON document with the mapped http status.
func JSONResponse(w http.ResponseWriter, err error) error {
	status := AsStatus(err)
	if status == nil {
		status = Internal("%s", Message(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status.Http())
	return json.NewEncoder(w).Encode(status)
}
