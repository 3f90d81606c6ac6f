package main

import (
	"fmt"
	"os"

	lunalove "github.com/NexovateSolution/LunaLove-sub000"
)

// getClient creates a LunaLove API client from the stored config.
// LUNALOVE_TOKEN and LUNALOVE_BASE_URL override the config file.
func getClient() *lunalove.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	token := os.Getenv("LUNALOVE_TOKEN")
	if token == "" {
		token = cfg.Auth.Token
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "No session token. Run 'lunalove login <token>' first.")
		os.Exit(1)
	}

	baseURL := os.Getenv("LUNALOVE_BASE_URL")
	if baseURL == "" {
		baseURL = cfg.Default.BaseURL
	}

	var opts []lunalove.ClientOption
	if baseURL != "" {
		opts = append(opts, lunalove.WithBaseURL(baseURL))
	}
	return lunalove.NewClient(token, opts...)
}

// getSession creates a session on top of getClient.
func getSession() *lunalove.Session {
	cfg, _ := loadConfig()
	selfID := os.Getenv("LUNALOVE_USER_ID")
	if selfID == "" && cfg != nil {
		selfID = cfg.Auth.UserID
	}
	return lunalove.NewSession(getClient(), &lunalove.SessionConfig{
		SelfID: selfID,
	})
}
