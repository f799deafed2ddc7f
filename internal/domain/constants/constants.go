// Package constants holds configuration values shared across layers.
package constants

const (
	EnvDevelop    = "develop"
	EnvProduction = "production"
)

const (
	PubSubProviderLocal  = "local"
	PubSubProviderGoogle = "google"
)

const (
	StorageDriverBlob     = "blob"
	StorageDriverPostgres = "postgres"
)

const (
	GoogleModeTokenInfo = "tokeninfo"
	GoogleModeIDToken   = "idtoken"
)
