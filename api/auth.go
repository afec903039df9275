package api

import (
	"context"
	"net/http"

	"github.com/jmcleod/ballotbox/auth"
)

// Login exchanges credentials for a bearer token and the user's profile.
// The token is returned as is; nothing is stored here.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (auth.LoginResult, error) {
	var resp loginResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/login", creds, &resp); err != nil {
		return auth.LoginResult{}, err
	}
	return auth.LoginResult{AccessToken: resp.AccessToken, User: resp.User}, nil
}

// Register creates an account and returns the server's confirmation
// message. It does not sign the user in.
func (c *Client) Register(ctx context.Context, reg auth.Registration) (string, error) {
	var resp MessageResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/auth/register", reg, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// AvailableEthAddresses lists the Ethereum addresses not yet bound to a
// user, for the registration form.
func (c *Client) AvailableEthAddresses(ctx context.Context) ([]string, error) {
	var resp ethAddressesResponse
	if err := c.getJSON(ctx, "/auth/available_eth_addresses", nil, &resp); err != nil {
		return nil, err
	}
	return resp.AvailableAddresses, nil
}

// CurrentUser fetches the profile of the credential holder.
func (c *Client) CurrentUser(ctx context.Context) (auth.UserProfile, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, "/auth/me", nil, &resp); err != nil {
		return auth.UserProfile{}, err
	}
	return resp.User, nil
}
