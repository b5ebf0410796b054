package properties

import "os"

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

func DatabasePath() string {
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		return p
	}
	return RootPath() + "/data/forest-watch.db"
}

func ImageryClientID() string {
	return os.Getenv("IMAGERY_CLIENT_ID")
}

func ImageryClientSecret() string {
	return os.Getenv("IMAGERY_CLIENT_SECRET")
}

func ImageryTokenURL() string {
	return os.Getenv("IMAGERY_TOKEN_URL")
}

func ImageryBaseURL() string {
	if url := os.Getenv("IMAGERY_BASE_URL"); url != "" {
		return url
	}
	return "https://api.planet.com/basemaps/v1"
}

func AlertAPIBaseURL() string {
	if url := os.Getenv("ALERT_API_BASE_URL"); url != "" {
		return url
	}
	return "https://data-api.globalforestwatch.org"
}

func AlertAPIKey() string {
	return os.Getenv("ALERT_API_KEY")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

// Color is an RGB triple used when rendering classified rasters to PNG.
type Color struct {
	R, G, B uint8
}

// ClassColorMap maps land cover class names to display colors.
var ClassColorMap = map[string]Color{
	"Forest":     {34, 139, 34},
	"Non-Forest": {210, 180, 140},
	"Cloud":      {255, 255, 255},
	"Shadow":     {105, 105, 105},
	"Water":      {30, 144, 255},
	"unknown":    {255, 0, 0},
}
