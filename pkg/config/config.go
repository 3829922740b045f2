package config

import "encoding/base64"

// Cycle identifies the release cycle the process runs in. It is resolved once
// at startup and carried inside Config; core logic never inspects the
// environment directly.
type Cycle string

const (
	CycleDev    Cycle = "dev"
	CycleStaged Cycle = "staged"
	CycleProd   Cycle = "prod"
)

// Extension holds the Twitch extension credentials used to verify inbound
// bearer tokens and to sign outbound pub/sub server tokens.
type Extension struct {
	ClientID string
	OwnerID  string
	Version  string
	// Secret is the raw (decoded) shared secret. Twitch hands it out
	// base64-encoded; DecodeExtensionSecret handles that.
	Secret []byte
}

// Config is the explicit process configuration, built once in main and passed
// by reference into every component.
type Config struct {
	Cycle     Cycle
	Extension Extension

	DatabaseURL string
	RedisURL    string

	// PubSubURL is the Helix base URL used for outbound extension pub/sub
	// broadcasts.
	PubSubURL string
}

// Load assembles a Config from the process environment.
func Load() (*Config, error) {
	secret, err := DecodeExtensionSecret(RequireEnv("EXTENSION_SECRET"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Cycle: ResolveCycle(GetEnv("CYCLE", "prod")),
		Extension: Extension{
			ClientID: RequireEnv("EXTENSION_CLIENT_ID"),
			OwnerID:  GetEnv("EXTENSION_OWNER_ID", ""),
			Version:  GetEnv("EXTENSION_VERSION", "dev"),
			Secret:   secret,
		},
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		RedisURL:    GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		PubSubURL:   GetEnv("PUBSUB_URL", "https://api.twitch.tv/helix"),
	}, nil
}

// ResolveCycle maps a raw cycle string to a known Cycle, defaulting to prod.
func ResolveCycle(raw string) Cycle {
	switch Cycle(raw) {
	case CycleDev, CycleStaged:
		return Cycle(raw)
	default:
		return CycleProd
	}
}

// DecodeExtensionSecret decodes the base64 extension secret as distributed by
// Twitch.
func DecodeExtensionSecret(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
