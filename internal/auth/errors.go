package auth

import "errors"

// Each sentinel is one kind of rejection the HTTP layer maps to a status.
// Wrapped causes keep the kind matchable with errors.Is.
var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrAlreadyRegistered         = errors.New("email already registered")
	ErrInvalidOrExpiredOtp       = errors.New("invalid or expired OTP")
	ErrEmailNotVerified          = errors.New("email not verified")
	ErrUsernameTaken             = errors.New("username already exists")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrInvalidRefreshToken       = errors.New("invalid refresh token")
	ErrRefreshTokenNotRecognized = errors.New("refresh token not recognized")
	ErrEmailNotProvided          = errors.New("email not provided by identity provider")
	ErrNotificationFailed        = errors.New("failed to send OTP")
	ErrProviderUnavailable       = errors.New("identity provider unavailable")
)
