package mongodb

const (
	OAuthSessionsCollection = "oauth2_client_sessions" // Pending authorization sessions
	CredentialsCollection   = "oauth2_client_credentials"
)
