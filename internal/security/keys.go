package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	// ErrInvalidKey is returned when key material is missing, unreadable or of an unsupported type.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyMismatch is returned when the configured public key does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// SigningConfig selects how session tokens are signed. PrivateKey and PublicKey are inline PEM or
// file paths and must be set together; Secret is used only when neither is set.
type SigningConfig struct {
	PrivateKey string
	PublicKey  string
	Secret     string
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// LoadTokenProvider builds the TokenProvider described by c.
func LoadTokenProvider(c SigningConfig) (*TokenProvider, error) {
	switch {
	case c.PrivateKey != "" && c.PublicKey != "":
		signer, err := ParseSigningKey(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		pub, err := ParseVerifyingKey(c.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("public key: %w", err)
		}
		if !publicKeysEqual(signer.Public(), pub) {
			return nil, ErrKeyMismatch
		}
		return NewTokenProvider(signer, pub, c.Issuer, c.Audience, c.TTL), nil
	case c.PrivateKey != "" || c.PublicKey != "":
		return nil, fmt.Errorf("%w: private and public key must be configured together", ErrInvalidKey)
	case c.Secret != "":
		return NewHMACTokenProvider([]byte(c.Secret), c.Issuer, c.Audience, c.TTL), nil
	default:
		return nil, fmt.Errorf("%w: no signing key or secret configured", ErrInvalidKey)
	}
}

// ParseSigningKey reads an RSA or ECDSA P-256 private key in PKCS#1, PKCS#8 or SEC 1 form.
func ParseSigningKey(s string) (crypto.Signer, error) {
	block, err := readPEMBlock(s)
	if err != nil {
		return nil, err
	}
	var signer crypto.Signer
	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		signer, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var key any
		if key, err = x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			var ok bool
			if signer, ok = key.(crypto.Signer); !ok {
				return nil, ErrInvalidKey
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if SigningAlg(signer.Public()) == "" {
		return nil, fmt.Errorf("%w: unsupported key algorithm", ErrInvalidKey)
	}
	return signer, nil
}

// ParseVerifyingKey reads an RSA or ECDSA P-256 public key in PKIX or PKCS#1 form.
func ParseVerifyingKey(s string) (crypto.PublicKey, error) {
	block, err := readPEMBlock(s)
	if err != nil {
		return nil, err
	}
	var pub crypto.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if SigningAlg(pub) == "" {
		return nil, fmt.Errorf("%w: unsupported key algorithm", ErrInvalidKey)
	}
	return pub, nil
}

// SigningAlg names the JWT algorithm for pub: RS256 for RSA, ES256 for P-256, empty for anything else.
func SigningAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
	}
	return ""
}

// readPEMBlock decodes the first PEM block of s, which is either inline PEM or a file path.
// Env vars often carry inline PEM with literal "\n" sequences.
func readPEMBlock(s string) (*pem.Block, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	var raw []byte
	if strings.HasPrefix(s, "-----BEGIN") {
		raw = []byte(strings.ReplaceAll(s, `\n`, "\n"))
	} else {
		b, err := os.ReadFile(s)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		raw = b
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}
	return block, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	k, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && k.Equal(b)
}
