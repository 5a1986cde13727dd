package config

// EnvPrefix is the envconfig prefix for all service settings.
const EnvPrefix = "CARDHOLD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// SQLiteMemoryDSN backs local development when no DSN is provided.
	SQLiteMemoryDSN = "file::memory:?cache=shared"
)

const (
	EnvDBDSN  = "CARDHOLD_DB_DSN"
	EnvDBHost = "CARDHOLD_DB_HOST"
	EnvDBUser = "CARDHOLD_DB_USER"
	EnvDBName = "CARDHOLD_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
