package models

// Settings holds the per-channel extension settings. The core engine only
// consults AutoShoutouts; the rest is passed through to the frontend.
type Settings struct {
	BackgroundColor string   `json:"background-color"`
	BorderColor     string   `json:"border-color"`
	Color           string   `json:"color"`
	AutoShoutouts   bool     `json:"auto-shoutouts"`
	BadgeVIP        bool     `json:"badge-vip"`
	Commands        []string `json:"commands"`
	EnableBits      bool     `json:"enable-bits"`
	BitsTier        string   `json:"bits-tier"`
	PinDays         int      `json:"pin-days"`
}

// DefaultSettings returns the settings applied to a channel that has never
// saved any.
func DefaultSettings() Settings {
	return Settings{
		BackgroundColor: "#6441A5",
		BorderColor:     "#808080",
		Color:           "#FFFFFF",
		AutoShoutouts:   false,
		BadgeVIP:        true,
		Commands:        []string{"so", "shoutout"},
		EnableBits:      true,
		BitsTier:        "Tier 1",
		PinDays:         3,
	}
}
