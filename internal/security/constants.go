package security

// Security-related constants
const (
	// Cookie names
	SessionName = "oncoderma_session"
	FlashName   = "oncoderma_flash"

	// Session value keys
	sessionKeyUserID   = "user_id"
	sessionKeyUsername = "username"
	sessionKeyLoginAt  = "login_at"

	// DefaultSessionMaxAgeSeconds is two weeks.
	DefaultSessionMaxAgeSeconds = 1209600

	// MinSessionSecretLength is the minimum key size accepted by securecookie for HMAC.
	MinSessionSecretLength = 32

	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)
