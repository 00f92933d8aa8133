package constants

const (
	// DefaultConfigPath is the config file location used when no --config
	// flag is given.
	DefaultConfigPath = "./config.toml"

	// DefaultEnvFile is the .env file loaded before reading the config.
	DefaultEnvFile = "./.env"
)
