package ociserver

import (
	"encoding/json"
	"net/http"

	"github.com/ipregistry/ociregistry/regerror"
)

// writeError translates err into the {"error": "..."} wire body from
// spec.md §7, using regerror.HTTPStatus to pick the status code.
func writeError(w http.ResponseWriter, err error) {
	status := regerror.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(regerror.WriteBody{ErrorMsg: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
