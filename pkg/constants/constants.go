package constants

const (
	AppName        = "echo"
	AppDisplayName = "Echo Health"
	ConfigName     = "config"
	ConfigFormat   = "yaml"

	// EnvPrefix is prepended to env overrides, e.g. ECHO_DATABASE_HOST.
	EnvPrefix = "ECHO"

	EnvProduction  = "production"
	EnvDevelopment = "development"
)
