package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
)

const (
	rsaKeyBits = 2048

	publicKeyPEMType  = "PUBLIC KEY"
	privateKeyPEMType = "PRIVATE KEY"
)

// KeyPairService generates and unwraps the RSA key pairs used to sign
// credentials. Private key material only exists in clear inside this process:
// it is encrypted with the KMS keeper before it ever reaches a repository.
type KeyPairService struct {
	keeper KMSKeeper
}

// NewKeyPairService creates a new KeyPairService backed by the given keeper.
func NewKeyPairService(keeper KMSKeeper) *KeyPairService {
	return &KeyPairService{keeper: keeper}
}

// Generate creates a fresh RSA signing key pair. The returned SigningKey holds
// the PEM public key in clear and the private key encrypted with the keeper;
// verifyWindow bounds how long the key may verify after it stops signing.
func (s *KeyPairService) Generate(ctx context.Context, now time.Time, verifyWindow time.Duration) (*authDomain.SigningKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: publicDER})

	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: privateDER})

	encrypted, err := s.keeper.Encrypt(ctx, privatePEM)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	return &authDomain.SigningKey{
		ID:                  uuid.Must(uuid.NewV7()),
		Kid:                 uuid.Must(uuid.NewV7()).String(),
		Algorithm:           authDomain.SigningAlgorithm,
		PublicKeyPEM:        string(publicPEM),
		PrivateKeyEncrypted: encrypted,
		CreatedAt:           now,
		ExpiresAt:           now.Add(verifyWindow),
	}, nil
}

// UnwrapPrivateKey decrypts a stored signing key's private key material with
// the keeper and parses it back into an *rsa.PrivateKey.
func (s *KeyPairService) UnwrapPrivateKey(ctx context.Context, key *authDomain.SigningKey) (*rsa.PrivateKey, error) {
	privatePEM, err := s.keeper.Decrypt(ctx, key.PrivateKeyEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	block, _ := pem.Decode(privatePEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}

	return rsaKey, nil
}

// ParsePublicKey parses a stored signing key's PEM public key.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}

	return rsaKey, nil
}
