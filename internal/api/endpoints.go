package api

import (
	"context"
	"net/http"
	"net/url"

	"uniqsocial/client/internal/models"
)

// Login exchanges credentials for a token pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) (models.TokenPair, error) {
	var tokens models.TokenPair
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.doPublic(ctx, http.MethodPost, "/auth/login", req, &tokens); err != nil {
		return models.TokenPair{}, err
	}
	return tokens, c.Tokens.SetTokens(ctx, tokens)
}

// Signup creates an account and stores the returned token pair.
func (c *Client) Signup(ctx context.Context, email, password, username string) (models.TokenPair, error) {
	var tokens models.TokenPair
	req := models.SignupRequest{Email: email, Password: password, Username: username}
	if err := c.doPublic(ctx, http.MethodPost, "/auth/signup", req, &tokens); err != nil {
		return models.TokenPair{}, err
	}
	return tokens, c.Tokens.SetTokens(ctx, tokens)
}

// Logout forgets the stored token pair. There is no server call.
func (c *Client) Logout(ctx context.Context) error {
	return c.Tokens.Clear(ctx)
}

// Me returns the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (models.Profile, error) {
	var profile models.Profile
	err := c.Do(ctx, http.MethodGet, "/users/me", nil, &profile)
	return profile, err
}

// UpdateLocation reports where the user is.
func (c *Client) UpdateLocation(ctx context.Context, loc models.LocationUpdate) error {
	return c.Do(ctx, http.MethodPut, "/users/me/location", loc, nil)
}

// TodayMatch asks whether a match already exists for today.
func (c *Client) TodayMatch(ctx context.Context) (models.MatchResponse, error) {
	var resp models.MatchResponse
	err := c.Do(ctx, http.MethodGet, "/match/today", nil, &resp)
	return resp, err
}

// FindMatch asks the server to pair the user for today.
func (c *Client) FindMatch(ctx context.Context) (models.MatchResponse, error) {
	var resp models.MatchResponse
	err := c.Do(ctx, http.MethodPost, "/match/find", nil, &resp)
	return resp, err
}

// Messages returns the durable message log of a session.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := c.Do(ctx, http.MethodGet, "/chat/"+url.PathEscape(sessionID)+"/messages", nil, &messages)
	return messages, err
}

// EndChat terminates a session server-side.
func (c *Client) EndChat(ctx context.Context, sessionID string) error {
	return c.Do(ctx, http.MethodPost, "/chat/"+url.PathEscape(sessionID)+"/end", nil, nil)
}
