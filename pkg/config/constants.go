package config

const (
	EnvPrefix = "PETPRICE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
)

const (
	EnvAppEnv             = "PETPRICE_APP_ENV"
	EnvPort               = "PETPRICE_APP_PORT"
	EnvDBDSN              = "PETPRICE_DB_DSN"
	EnvDBHost             = "PETPRICE_DB_HOST"
	EnvDBUser             = "PETPRICE_DB_USER"
	EnvDBName             = "PETPRICE_DB_NAME"
	EnvJWTSecret          = "PETPRICE_JWT_SECRET"
	EnvJWTIssuer          = "PETPRICE_JWT_ISSUER"
	EnvStandardVATRate    = "PETPRICE_STANDARD_VAT_RATE"
	EnvCurrencyMinorUnits = "PETPRICE_CURRENCY_MINOR_UNITS"
	EnvOutboxSink         = "PETPRICE_OUTBOX_SINK"
	EnvKafkaBrokers       = "PETPRICE_KAFKA_BROKERS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
