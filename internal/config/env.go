package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds the secrets and locations read from the environment.
type Env struct {
	STACURL       string
	ClientIDs     string
	ClientSecrets string
	TokenURL      string
	RootPath      string

	ErrorWebhook   string
	SuccessWebhook string
}

// LoadEnv reads files (default .env) when present, then the process
// environment. Missing files are not an error.
func LoadEnv(files ...string) Env {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	root := os.Getenv("LEAF_ROOT_PATH")
	if root == "" {
		root = "."
	}
	return Env{
		STACURL:        os.Getenv("LEAF_STAC_URL"),
		ClientIDs:      os.Getenv("LEAF_CLIENT_ID"),
		ClientSecrets:  os.Getenv("LEAF_CLIENT_SECRET"),
		TokenURL:       os.Getenv("LEAF_TOKEN_URL"),
		RootPath:       root,
		ErrorWebhook:   os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
		SuccessWebhook: os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL"),
	}
}
