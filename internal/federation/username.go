package federation

import (
	"fmt"

	"github.com/pilab-dev/googleconnector/domain"
)

// UsernameOf derives the local username of an owner. With a configured field the value
// is taken from the raw resource-owner document and a missing field is an error;
// otherwise the email is used.
func UsernameOf(owner *domain.ResourceOwner, field string) (string, error) {
	if owner == nil {
		return "", ErrUsernameMissing
	}

	if field == "" {
		if owner.Email == "" {
			return "", fmt.Errorf("%w: email", ErrUsernameMissing)
		}
		return owner.Email, nil
	}

	switch v := owner.Raw[field].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}

	return "", fmt.Errorf("%w: %s", ErrUsernameMissing, field)
}
