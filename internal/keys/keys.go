package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

func b64u(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// Generate creates an ES384 keypair for the admin API surface and writes
// both JWKs under dir, named by the public key thumbprint. Returns the
// private key path and the thumbprint.
func Generate(dir string) (path string, thumb string, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}

	privKey, err := jwk.Import(privateKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to import private key: %w", err)
	}
	if err := privKey.Set(jwk.AlgorithmKey, jwa.ES384()); err != nil {
		return "", "", fmt.Errorf("failed to set algorithm: %w", err)
	}

	pubKey, err := jwk.PublicKeyOf(privKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to get public key: %w", err)
	}

	tpBytes, err := pubKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", "", fmt.Errorf("failed to calculate thumbprint: %w", err)
	}
	tp := b64u(tpBytes)

	if err := privKey.Set(jwk.KeyIDKey, tp); err != nil {
		return "", "", fmt.Errorf("failed to set private key ID: %w", err)
	}
	if err := pubKey.Set(jwk.KeyIDKey, tp); err != nil {
		return "", "", fmt.Errorf("failed to set public key ID: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", err
	}
	privPath := filepath.Join(dir, fmt.Sprintf("key-%s.jwk", tp))
	pubPath := filepath.Join(dir, fmt.Sprintf("key-%s.pub.jwk", tp))

	privJSON, err := json.MarshalIndent(privKey, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(privPath, privJSON, 0o600); err != nil {
		return "", "", err
	}

	pubJSON, err := json.MarshalIndent(pubKey, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubJSON, 0o644); err != nil {
		return "", "", err
	}

	return privPath, tp, nil
}
