package auth

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthorized is returned for a missing or invalid session token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned when the shop has no stored offline session.
	ErrNoSession = errors.New("shop session not found")
)

// CheckoutSession is the verified context of a post-purchase request.
type CheckoutSession struct {
	Shop        string
	ReferenceID string
	ProductIDs  []string
}

// CheckoutClaims is the payload of a checkout session token.
type CheckoutClaims struct {
	jwt.RegisteredClaims
	InputData InputData `json:"input_data"`
}

// InputData is the purchase context embedded in a checkout session token.
type InputData struct {
	Shop            ShopData        `json:"shop"`
	InitialPurchase InitialPurchase `json:"initialPurchase"`
}

// ShopData identifies the shop a purchase belongs to.
type ShopData struct {
	ID     json.Number `json:"id"`
	Domain string      `json:"domain"`
}

// InitialPurchase is the completed purchase the offer is built for.
type InitialPurchase struct {
	ReferenceID string     `json:"referenceId"`
	CustomerID  string     `json:"customerId,omitempty"`
	LineItems   []LineItem `json:"lineItems"`
}

// LineItem is one purchased line.
type LineItem struct {
	Quantity int         `json:"quantity"`
	Product  LineProduct `json:"product"`
}

// LineProduct is the product of a purchased line. The id is numeric on the wire.
type LineProduct struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title,omitempty"`
}

// AdminClaims is the payload of an embedded-admin session token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Dest string `json:"dest"`
}

// Verifier validates platform-issued session tokens signed with the app secret.
type Verifier struct {
	apiKey string
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier for tokens issued to the app apiKey.
func NewVerifier(apiKey string, secret []byte) *Verifier {
	return &Verifier{
		apiKey: apiKey,
		secret: secret,
		leeway: 5 * time.Second,
		now:    time.Now,
	}
}

func (v *Verifier) parse(token string, claims jwt.Claims) error {
	if len(v.secret) == 0 || token == "" {
		return ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.apiKey != "" {
		opts = append(opts, jwt.WithAudience(v.apiKey))
	}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		opts...,
	)
	if err != nil {
		return errors.Wrap(ErrUnauthorized, err.Error())
	}
	if !parsed.Valid {
		return ErrUnauthorized
	}
	return nil
}

// VerifyCheckout validates a checkout session token and extracts the purchase
// context. A token without a shop domain is rejected.
func (v *Verifier) VerifyCheckout(token string) (*CheckoutSession, error) {
	claims := &CheckoutClaims{}
	if err := v.parse(token, claims); err != nil {
		return nil, err
	}

	in := claims.InputData
	if in.Shop.Domain == "" {
		return nil, errors.Wrap(ErrUnauthorized, "token has no shop domain")
	}

	ids := make([]string, 0, len(in.InitialPurchase.LineItems))
	for _, li := range in.InitialPurchase.LineItems {
		if id := li.Product.ID.String(); id != "" {
			ids = append(ids, id)
		}
	}

	return &CheckoutSession{
		Shop:        in.Shop.Domain,
		ReferenceID: in.InitialPurchase.ReferenceID,
		ProductIDs:  ids,
	}, nil
}

// VerifyAdmin validates an embedded-admin session token and returns the shop
// domain taken from its destination claim.
func (v *Verifier) VerifyAdmin(token string) (string, error) {
	claims := &AdminClaims{}
	if err := v.parse(token, claims); err != nil {
		return "", err
	}

	u, err := url.Parse(claims.Dest)
	if err != nil || u.Host == "" {
		return "", errors.Wrap(ErrUnauthorized, "invalid dest claim")
	}
	if claims.Issuer != "" && !strings.HasPrefix(claims.Issuer, claims.Dest) {
		return "", errors.Wrap(ErrUnauthorized, "issuer does not match dest")
	}
	return u.Host, nil
}

// ShopSession is the offline Admin API credential of a shop.
type ShopSession struct {
	Shop        string
	AccessToken string
	Scope       string
	UpdatedAt   time.Time
}

// SessionRepository stores offline shop sessions.
type SessionRepository interface {
	// AccessToken returns ErrNoSession when the shop has not installed the app.
	AccessToken(ctx context.Context, shop string) (string, error)
	Upsert(ctx context.Context, s *ShopSession) error
}
