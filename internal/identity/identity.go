// Package identity validates the optional PS3.7 Annex D user-identity
// sub-item an A-ASSOCIATE-RQ may carry, wired into dimse.ServerConfig's
// IdentityValidator.
package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// Claims is the custom claim shape for SCU-presented JWT assertions,
// adapted from the teacher's multi-tenant JWTClaims down to the single
// calling AE title this gateway needs to authorize.
type Claims struct {
	CallingAETitle string `json:"calling_ae_title"`
	jwt.RegisteredClaims
}

// Credential is one known username, with an optional bcrypt password hash,
// that an SCP accepts. The JWT-signing secret is Validator.JWTSecret.
type Credential struct {
	Username     string
	PasswordHash string // bcrypt hash; empty if this user has no password
}

// Validator checks a UserIdentity sub-item against configured credentials.
// Types 3 (Kerberos) and 4 (SAML) are accepted opaquely (their tokens are
// not parsed locally) since this gateway has no Kerberos/SAML infrastructure
// to validate against; type 5 (JWT) is verified against JWTSecret.
type Validator struct {
	Credentials map[string]Credential
	JWTSecret   []byte
	Promiscuous bool // accept every identity, including absent ones
}

// NewValidator builds a Validator from a credential list.
func NewValidator(creds []Credential, jwtSecret []byte, promiscuous bool) *Validator {
	byUsername := make(map[string]Credential, len(creds))
	for _, c := range creds {
		byUsername[c.Username] = c
	}
	return &Validator{Credentials: byUsername, JWTSecret: jwtSecret, Promiscuous: promiscuous}
}

// Validate implements the function type dimse.ServerConfig.IdentityValidator
// expects.
func (v *Validator) Validate(identity ulpdu.UserIdentity) bool {
	if v.Promiscuous {
		return true
	}
	if !identity.Present {
		return true
	}
	switch identity.Type {
	case 1:
		_, ok := v.Credentials[identity.Username]
		return ok
	case 2:
		return v.validatePassword(identity.Username, identity.Password)
	case 3, 4:
		return identity.Token != ""
	case 5:
		return v.validateJWT(identity.Token)
	default:
		return false
	}
}

func (v *Validator) validatePassword(username, password string) bool {
	cred, ok := v.Credentials[username]
	if !ok || cred.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) == nil
}

func (v *Validator) validateJWT(token string) bool {
	if len(v.JWTSecret) == 0 || token == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.JWTSecret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	return true
}

// HashPassword bcrypt-hashes a plaintext password for storage in a
// Credential.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IssueJWT mints a short-lived assertion for an SCU to present as a type-5
// user identity, signed with HS256 using secret.
func IssueJWT(secret []byte, callingAETitle string, ttl time.Duration) (string, error) {
	claims := Claims{
		CallingAETitle: callingAETitle,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
