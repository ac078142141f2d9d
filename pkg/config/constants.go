package config

const (
	EnvPrefix = "SETTLEMENTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SETTLEMENTS_DB_DSN"
	EnvDBHost = "SETTLEMENTS_DB_HOST"
	EnvDBUser = "SETTLEMENTS_DB_USER"
	EnvDBName = "SETTLEMENTS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
