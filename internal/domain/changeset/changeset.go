// Package changeset signs the order-mutation changesets accepted by a shopper
// after checkout.
//
// A token binds a purchase reference id (the JWT subject) to an exact list of
// changes. The order-mutation service shares the secret and rejects any token
// whose subject or changes were altered after signing. Tokens are not stored
// here; expiry and single-use enforcement belong to the consumer.
package changeset

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrSigningUnavailable is returned when no signing secret is configured.
	// Accepting an offer must fail in that case.
	ErrSigningUnavailable = errors.New("changeset signing unavailable")
	// ErrInvalidPayload is returned for a payload that must not be signed.
	ErrInvalidPayload = errors.New("invalid changeset payload")
	// ErrInvalidToken is returned by Verify for a token that fails validation.
	ErrInvalidToken = errors.New("invalid changeset token")
)

// ChangeAddVariant is the only change kind produced by offers.
const ChangeAddVariant = "add_variant"

// Change is a single order-line mutation.
type Change struct {
	Type      string    `json:"type"`
	VariantID int64     `json:"variantId"`
	Quantity  int       `json:"quantity"`
	Discount  *Discount `json:"discount,omitempty"`
}

// Discount is the discount applied to the line added by a Change.
type Discount struct {
	Value     float64 `json:"value"`
	ValueType string  `json:"valueType"`
	Title     string  `json:"title"`
}

// Claims is the signed payload of a changeset token.
type Claims struct {
	jwt.RegisteredClaims
	Changes []Change `json:"changes"`
}

// Authorizer signs and verifies changeset tokens with a shared HMAC secret.
type Authorizer struct {
	issuer string
	secret []byte
	now    func() time.Time
	newID  func() string
}

// NewAuthorizer returns an Authorizer issuing tokens as issuer (the app API key).
func NewAuthorizer(issuer string, secret []byte) *Authorizer {
	return &Authorizer{
		issuer: issuer,
		secret: secret,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Sign returns a token authorizing changes against the purchase identified by
// referenceID. Each call uses a fresh token id, so identical inputs still
// produce distinct tokens.
func (a *Authorizer) Sign(referenceID string, changes []Change) (string, error) {
	if len(a.secret) == 0 {
		return "", ErrSigningUnavailable
	}
	if referenceID == "" {
		return "", errors.Wrap(ErrInvalidPayload, "empty reference id")
	}
	if len(changes) == 0 {
		return "", errors.Wrap(ErrInvalidPayload, "no changes")
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			ID:       a.newID(),
			IssuedAt: jwt.NewNumericDate(a.now()),
			Subject:  referenceID,
		},
		Changes: changes,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign changeset")
	}
	return token, nil
}

// Verify parses token and checks its signature and issuer.
func (a *Authorizer) Verify(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrSigningUnavailable
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
