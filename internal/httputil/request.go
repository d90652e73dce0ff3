package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ParseJSON decodes the request body into dest, capping the body size.
// Unknown fields are tolerated so older clients keep working across
// additive API changes; field-level validation happens in the services.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	// 10MB covers the largest global-edit body (whole document + instruction)
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
