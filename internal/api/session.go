package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rickgao/pricefeed/internal/model"
)

// Errors
var (
	ErrUnsupportedTicker = errors.New("ticker not supported")
	ErrNoToken           = errors.New("login response has no token")
)

// Register creates an account and returns its session. The client's token
// is replaced with the issued one.
func (c *Client) Register(ctx context.Context, email, password string) (*model.User, string, error) {
	return c.authenticate(ctx, "/auth/register", email, password)
}

// Login authenticates and returns the user and session token. The client's
// token is replaced with the issued one.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*model.User, string, error) {
	var resp AuthResponse
	req := credentialsRequest{Email: email, Password: password}
	if err := c.call(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, "", fmt.Errorf("post %s: %w", path, err)
	}
	if resp.Token == "" {
		return nil, "", ErrNoToken
	}

	c.SetToken(resp.Token)
	user := resp.User.ToUser()

	c.logger.Info("session established", "email", user.Email, "user_id", user.ID)
	return &user, resp.Token, nil
}

// ListSubscriptions fetches the tickers on the user's watchlist.
func (c *Client) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	var resp SubscriptionsResponse
	if err := c.call(ctx, http.MethodGet, "/subscriptions", nil, &resp); err != nil {
		return nil, fmt.Errorf("get subscriptions: %w", err)
	}
	return ToSubscriptions(resp.Subscriptions), nil
}

// AddSubscription adds ticker to the watchlist. Tickers outside the supported
// list are rejected without a request.
func (c *Client) AddSubscription(ctx context.Context, ticker string) error {
	ticker = NormalizeTicker(ticker)
	if !c.Supported(ticker) {
		return fmt.Errorf("add subscription %q: %w", ticker, ErrUnsupportedTicker)
	}

	if err := c.call(ctx, http.MethodPost, "/subscriptions", subscriptionRequest{Ticker: ticker}, nil); err != nil {
		return fmt.Errorf("add subscription %s: %w", ticker, err)
	}
	return nil
}

// RemoveSubscription removes ticker from the watchlist.
func (c *Client) RemoveSubscription(ctx context.Context, ticker string) error {
	ticker = NormalizeTicker(ticker)
	if err := c.call(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(ticker), nil, nil); err != nil {
		return fmt.Errorf("remove subscription %s: %w", ticker, err)
	}
	return nil
}
