package config

type Config interface {
	EnvConfig
	CorsConfig
	HandoffConfig
	ProviderConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetDatabasePath() string
	GetLogFile() string
	GetLogLevel() string
	GetBaseURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Handoff
	Providers
	Security
}

func New() Config {
	return mainConfig{}
}
