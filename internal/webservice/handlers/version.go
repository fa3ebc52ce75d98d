package handlers

import (
	"fmt"
	"net/http"

	"github.com/webcompat/ochazuke/internal/constants"
	"github.com/webcompat/ochazuke/internal/webservice/metrics"
)

// VersionHandler handles requests to the /version endpoint.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":"%s"}`, constants.Version)
}

// HomeHandler greets visitors on the root path.
func HomeHandler(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	plainText(w, http.StatusOK, "Welcome to ochazuke")
}
