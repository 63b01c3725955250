package auth

import "github.com/geocoder89/devicewatch/internal/domain/user"

// Allow reports whether role satisfies any of required. An empty required
// set means any authenticated role is enough.
func Allow(role user.Role, required ...user.Role) bool {
	if !role.Valid() {
		return false
	}

	if len(required) == 0 {
		return true
	}

	for _, r := range required {
		if r == role {
			return true
		}
	}

	return false
}
