package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/pricefeed/internal/api"
	"github.com/rickgao/pricefeed/internal/auth"
	"github.com/rickgao/pricefeed/internal/config"
)

var errRegisterNeedsLogin = errors.New("registration needs api.email and api.password")

// resolveCredentials returns a session token from config or the token file,
// logging in with email and password when neither is available. With
// register set it creates the account first and uses the issued token. A
// token obtained by login or registration is saved to the token file when one
// is configured.
func resolveCredentials(ctx context.Context, cfg config.APIConfig, client *api.Client, register bool, logger *slog.Logger) (*auth.Credentials, error) {
	if register {
		if cfg.Email == "" || cfg.Password == "" {
			return nil, errRegisterNeedsLogin
		}
		_, token, err := client.Register(ctx, cfg.Email, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		saveToken(cfg.TokenPath, token, logger)
		return auth.New(token, "register"), nil
	}

	creds, err := auth.LoadCredentials(cfg.Token, cfg.TokenPath)
	if err == nil {
		client.SetToken(creds.Token)
		return creds, nil
	}
	if cfg.Email == "" || cfg.Password == "" {
		return nil, err
	}
	if !errors.Is(err, auth.ErrNoCredential) {
		logger.Warn("stored token unavailable, logging in", "error", err)
	}

	_, token, err := client.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	saveToken(cfg.TokenPath, token, logger)
	return auth.New(token, "login"), nil
}

func saveToken(path, token string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := auth.SaveToken(path, token); err != nil {
		logger.Warn("failed to save session token", "path", path, "error", err)
	}
}
