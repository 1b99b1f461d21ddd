package requests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func ValidateRequired(fields map[string]string) error {
	var missing []string
	for field, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	return nil
}

// Helper to parse and validate JSON request
func ParseAndValidateJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %v", err)
	}

	if validator, ok := dst.(interface{ Validate() error }); ok {
		return validator.Validate()
	}

	return nil
}
