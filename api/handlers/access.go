package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/api"
	"github.com/classkeep/license-api/config"
	"github.com/classkeep/license-api/licensing"
)

// Access exported for testing purposes
type Access struct {
	Gate licensing.Gate
}

// CheckAccessHandler answers whether the account may use the platform right
// now. Suspended accounts are rejected immediately; otherwise the bound
// license is re-validated and a stale license triggers suspension before the
// denial goes out.
func (a Access) CheckAccessHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["account_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	decision, err := a.Gate.CheckAccess(ctx, accountID)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrAccessSuspended):
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(decision)
		case errors.Is(err, licensing.ErrLicenseExpired), errors.Is(err, licensing.ErrLicenseNotFound):
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(decision)
		case errors.Is(err, mongo.ErrNoDocuments):
			config.ErrorStatus("account not found", http.StatusNotFound, w, err)
		default:
			config.ErrorStatus("failed to check access", http.StatusInternalServerError, w, err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(decision)
}
