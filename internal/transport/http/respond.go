package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "ballotbox/pkg/domain-errors"
)

// errorResponse is the JSON error envelope every endpoint shares.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates a coded domain error into the JSON envelope. Uncoded
// errors surface as a bare internal error so no store detail leaks.
func writeError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		writeJSON(w, dErrors.ToHTTPStatus(de.Code), errorResponse{
			Error:   string(de.Code),
			Message: de.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(dErrors.CodeInternal)})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
