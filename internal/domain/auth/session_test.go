package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey = "api-key"
	testSecret = "api-secret"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testVerifier() *Verifier {
	v := NewVerifier(testAPIKey, []byte(testSecret))
	v.now = func() time.Time { return fixedNow }
	return v
}

func sign(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func checkoutClaims() *CheckoutClaims {
	return &CheckoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{testAPIKey},
			IssuedAt:  jwt.NewNumericDate(fixedNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(5 * time.Minute)),
		},
		InputData: InputData{
			Shop: ShopData{ID: "1", Domain: "demo.myshopify.com"},
			InitialPurchase: InitialPurchase{
				ReferenceID: "ref-1",
				LineItems: []LineItem{
					{Quantity: 1, Product: LineProduct{ID: "101"}},
					{Quantity: 3, Product: LineProduct{ID: "202"}},
				},
			},
		},
	}
}

func TestVerifyCheckout(t *testing.T) {
	v := testVerifier()

	session, err := v.VerifyCheckout(sign(t, checkoutClaims(), testSecret))
	require.NoError(t, err)

	assert.Equal(t, "demo.myshopify.com", session.Shop)
	assert.Equal(t, "ref-1", session.ReferenceID)
	assert.Equal(t, []string{"101", "202"}, session.ProductIDs)
}

func TestVerifyCheckout_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name:  "empty token",
			token: func(*testing.T) string { return "" },
		},
		{
			name:  "wrong secret",
			token: func(t *testing.T) string { return sign(t, checkoutClaims(), "other") },
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := checkoutClaims()
				c.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-time.Hour))
				return sign(t, c, testSecret)
			},
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := checkoutClaims()
				c.Audience = jwt.ClaimStrings{"someone-else"}
				return sign(t, c, testSecret)
			},
		},
		{
			name: "missing shop",
			token: func(t *testing.T) string {
				c := checkoutClaims()
				c.InputData.Shop.Domain = ""
				return sign(t, c, testSecret)
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				token, err := jwt.NewWithClaims(jwt.SigningMethodNone, checkoutClaims()).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return token
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testVerifier().VerifyCheckout(tt.token(t))
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyCheckout_NoSecret(t *testing.T) {
	v := NewVerifier(testAPIKey, nil)
	_, err := v.VerifyCheckout(sign(t, checkoutClaims(), testSecret))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyAdmin(t *testing.T) {
	claims := &AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://demo.myshopify.com/admin",
			Audience:  jwt.ClaimStrings{testAPIKey},
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Minute)),
		},
		Dest: "https://demo.myshopify.com",
	}

	shop, err := testVerifier().VerifyAdmin(sign(t, claims, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", shop)

	claims.Issuer = "https://evil.myshopify.com/admin"
	_, err = testVerifier().VerifyAdmin(sign(t, claims, testSecret))
	require.ErrorIs(t, err, ErrUnauthorized)

	claims.Issuer = ""
	claims.Dest = ""
	_, err = testVerifier().VerifyAdmin(sign(t, claims, testSecret))
	require.ErrorIs(t, err, ErrUnauthorized)
}
