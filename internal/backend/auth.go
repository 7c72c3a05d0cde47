package backend

import (
	"context"
	"net/http"

	"github.com/aidcare/copilot/internal/session"
)

// Login exchanges credentials for a token and stores it with the user.
func (c *Client) Login(ctx context.Context, email, password string) (AuthToken, error) {
	var out AuthToken
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &out); err != nil {
		return AuthToken{}, err
	}
	c.storeToken(ctx, out)
	return out, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthToken, error) {
	var out AuthToken
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/auth/register", req, &out); err != nil {
		return AuthToken{}, err
	}
	c.storeToken(ctx, out)
	return out, nil
}

// Me refreshes the signed-in user from the current token.
func (c *Client) Me(ctx context.Context) (AuthUser, error) {
	var out AuthUser
	if err := c.gw.DoJSON(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return AuthUser{}, err
	}
	c.gw.Credentials().SetUser(out.sessionUser())
	return out, nil
}

func (c *Client) storeToken(ctx context.Context, tok AuthToken) {
	u := tok.User.sessionUser()
	c.gw.Credentials().Set(tok.AccessToken, &u)
	// Cached views never outlive the clinician who fetched them.
	c.invalidate(ctx, allNamespaces...)
}

func (u AuthUser) sessionUser() session.User {
	return session.User{
		DoctorID:     u.DoctorID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		Specialty:    u.Specialty,
		WardID:       u.WardID,
		WardName:     u.WardName,
		HospitalID:   u.HospitalID,
		HospitalName: u.HospitalName,
	}
}
