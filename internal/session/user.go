package session

import "github.com/phol232/AppSaludable-sub000/internal/api"

// User is the session's view of the signed-in account.
//
// A degraded user is reconstructed locally from the token when the
// backend profile cannot be fetched: username carries the subject claim
// and everything else is zero. It is a designed fallback, not an error
// state; the session proceeds as authenticated.
type User struct {
	ID         int
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	RoleID     int
	AvatarURL  string

	// Degraded marks a best-effort identity decoded from the token.
	Degraded bool
}

func userFromProfile(p *api.UserProfile, avatarURL string) *User {
	return &User{
		ID:         p.ID,
		Username:   p.Username,
		Email:      p.Email,
		GivenName:  p.GivenName,
		FamilyName: p.FamilyName,
		RoleID:     p.RoleID,
		AvatarURL:  avatarURL,
	}
}
