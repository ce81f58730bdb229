package config

const (
	EnvPrefix = "DONORLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "DONORLEDGER_APP_ENV"
	EnvPort     = "DONORLEDGER_APP_PORT"
	EnvRedisURL = "DONORLEDGER_REDIS_URL"

	EnvDBDSN  = "DONORLEDGER_DB_DSN"
	EnvDBHost = "DONORLEDGER_DB_HOST"
	EnvDBUser = "DONORLEDGER_DB_USER"
	EnvDBName = "DONORLEDGER_DB_NAME"

	EnvUseSQLite     = "DONORLEDGER_USE_SQLITE"
	EnvLedgerNetwork = "DONORLEDGER_LEDGER_NETWORK"
	EnvLedgerRPCURL  = "DONORLEDGER_LEDGER_RPC_URL"

	defaultSQLiteDSN = "file:donorledger.db?_foreign_keys=on"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

var ledgerNetworkURLs = map[string]string{
	"testnet": "https://s.altnet.rippletest.net:51234",
	"devnet":  "https://s.devnet.rippletest.net:51234",
	"mainnet": "https://xrplcluster.com",
}
