package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CREDITORACLE_DB_DSN"
	EnvDBHost = "CREDITORACLE_DB_HOST"
	EnvDBUser = "CREDITORACLE_DB_USER"
	EnvDBName = "CREDITORACLE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
