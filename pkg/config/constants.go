package config

// EnvPrefix is applied by envconfig when processing the environment.
const EnvPrefix = "OPENBOOK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "OPENBOOK_DB_DSN"
	EnvDBHost = "OPENBOOK_DB_HOST"
	EnvDBUser = "OPENBOOK_DB_USER"
	EnvDBName = "OPENBOOK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
