package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ownerIDKey is the key for the caller's owner id in the request context
const ownerIDKey contextKey = "ownerID"

// requireOwner rejects requests without a valid OwnerHeader and stores the
// parsed id in the request context.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.Header.Get(OwnerHeader))
		if err != nil || ownerID == uuid.Nil {
			RespondWithError(w, r, http.StatusUnauthorized, OwnerHeader+" header is missing or invalid")
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the owner id stored by requireOwner.
func ownerFrom(r *http.Request) uuid.UUID {
	ownerID, _ := r.Context().Value(ownerIDKey).(uuid.UUID)
	return ownerID
}

// pathUUID parses the named chi path parameter. It writes a 400 response
// and returns false when the value is not a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, name+" has invalid format")
		return uuid.Nil, false
	}
	return id, true
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
