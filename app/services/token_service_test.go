package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService() (TokenService, error) {
	return NewTokenService(15*time.Minute, "test-issuer", "test-audience", false, "", "", testSecret)
}

func rsaKeyPairPEM(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	return string(privatePEM), string(publicPEM)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		publicKey   string
		secretKey   string
		expectError bool
	}{
		{name: "valid symmetric key configuration", secretKey: testSecret},
		{name: "missing secret key", expectError: true},
		{name: "rsa without public key", useRSAKeys: true, expectError: true},
		{name: "rsa with garbage public key", useRSAKeys: true, publicKey: "not a pem", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(time.Hour, "iss", "aud", tt.useRSAKeys, "", tt.publicKey, tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	for _, role := range []string{RoleOperator, RoleAdmin} {
		t.Run(role, func(t *testing.T) {
			token, err := service.GenerateToken("picker-7", role)
			require.NoError(t, err)
			assert.Contains(t, token, "eyJ")

			claims, err := service.ValidateToken(token)
			require.NoError(t, err)
			assert.Equal(t, "picker-7", claims.Subject)
			assert.Equal(t, role, claims.Role)
			assert.Equal(t, role == RoleAdmin, claims.IsAdmin())
			assert.NotEmpty(t, claims.TokenID)
			assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
		})
	}
}

func TestGenerateTokenRejectsBadInput(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	_, err = service.GenerateToken("", RoleAdmin)
	assert.Error(t, err)

	_, err = service.GenerateToken("someone", "superuser")
	assert.Error(t, err)
}

func TestValidateTokenFailures(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	otherIssuer, err := NewTokenService(15*time.Minute, "other-issuer", "test-audience", false, "", "", testSecret)
	require.NoError(t, err)
	foreignToken, err := otherIssuer.GenerateToken("picker-7", RoleOperator)
	require.NoError(t, err)

	otherSecret, err := NewTokenService(15*time.Minute, "test-issuer", "test-audience", false, "", "", "a-completely-different-secret-value")
	require.NoError(t, err)
	forgedToken, err := otherSecret.GenerateToken("picker-7", RoleAdmin)
	require.NoError(t, err)

	now := time.Now()
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "picker-7",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "picker-7",
			Issuer:    "test-issuer",
			Audience:  jwt.ClaimStrings{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	noRoleToken, err := noRole.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty token", token: "", wantErr: ErrTokenInvalid},
		{name: "invalid token format", token: "invalid.token.format", wantErr: ErrTokenInvalid},
		{name: "wrong issuer", token: foreignToken, wantErr: ErrTokenInvalid},
		{name: "wrong signature", token: forgedToken, wantErr: ErrTokenInvalid},
		{name: "expired", token: expiredToken, wantErr: ErrTokenExpired},
		{name: "missing role", token: noRoleToken, wantErr: ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, claims)
		})
	}
}

func TestRSATokens(t *testing.T) {
	privatePEM, publicPEM := rsaKeyPairPEM(t)

	signer, err := NewTokenService(time.Hour, "test-issuer", "", true, privatePEM, publicPEM, "")
	require.NoError(t, err)
	verifier, err := NewTokenService(time.Hour, "test-issuer", "", true, "", publicPEM, "")
	require.NoError(t, err)

	token, err := signer.GenerateToken("admin-1", RoleAdmin)
	require.NoError(t, err)

	claims, err := verifier.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())

	_, err = verifier.GenerateToken("admin-1", RoleAdmin)
	assert.Error(t, err, "verifier without private key cannot sign")

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte(publicPEM))
	require.NoError(t, err)
	_, err = verifier.ValidateToken(hmacToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	const workers = 20
	tokens := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := service.GenerateToken("picker", RoleOperator)
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for _, token := range tokens {
		assert.False(t, seen[token], "token ids must differ")
		seen[token] = true
	}
}

func BenchmarkValidateToken(b *testing.B) {
	service, err := createTestTokenService()
	require.NoError(b, err)
	token, err := service.GenerateToken("picker", RoleOperator)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = service.ValidateToken(token)
	}
}
