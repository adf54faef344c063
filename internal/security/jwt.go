package security

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ely.by/changeskin/internal/version"
)

const issuer = "changeskin"

var now = time.Now
var signingMethod = jwt.SigningMethodHS256

type Scope string

const (
	// SkinsScope grants access to the names, skins and preferences
	SkinsScope Scope = "skins"
	// MessagingScope allows to send messages to the game servers
	MessagingScope Scope = "messaging"
)

var validScopes = []Scope{
	SkinsScope,
	MessagingScope,
}

var (
	ErrMissingAuthentication = errors.New("authentication value not provided")
	ErrInvalidToken          = errors.New("passed authentication value is invalid")
	ErrInsufficientScope     = errors.New("the token doesn't have the scope to perform the action")
)

type claims struct {
	jwt.RegisteredClaims
	Scopes []Scope `json:"scopes"`
}

func NewJwt(key []byte) *Jwt {
	return &Jwt{
		Key: key,
	}
}

// Jwt issues and verifies the HMAC signed tokens for the platform plugins talking to the API
type Jwt struct {
	Key []byte
}

func (t *Jwt) NewToken(scopes ...Scope) (string, error) {
	if len(scopes) == 0 {
		return "", errors.New("you must specify at least one scope")
	}

	for _, scope := range scopes {
		if !slices.Contains(validScopes, scope) {
			return "", fmt.Errorf("unknown scope %s", scope)
		}
	}

	token := jwt.NewWithClaims(signingMethod, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now()),
		},
		Scopes: scopes,
	})
	token.Header["v"] = version.MajorVersion

	return token.SignedString(t.Key)
}

func (t *Jwt) Authenticate(req *http.Request, scope Scope) error {
	tokenStr, err := bearerToken(req)
	if err != nil {
		return err
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(*jwt.Token) (interface{}, error) {
			return t.Key, nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}

	if _, vHeaderExists := token.Header["v"]; !vHeaderExists {
		return errors.Join(ErrInvalidToken, errors.New("missing v header"))
	}

	if !slices.Contains(token.Claims.(*claims).Scopes, scope) {
		return ErrInsufficientScope
	}

	return nil
}

func bearerToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthentication
	}

	prefix, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(prefix, "bearer") || token == "" {
		return "", ErrInvalidToken
	}

	return token, nil
}
