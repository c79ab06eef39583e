package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// chunkSize is the maximum plaintext size per RSA-OAEP(SHA-256) chunk for a
// 2048-bit key: 256 - 2*32 - 2 = 190. 117 bytes fits under that limit for
// keys of 2048 bits or more; with a 1024-bit key the limit is 62 bytes and
// EncryptAttribute returns an error.
const chunkSize = 117

// Codec is the optional payload-attribute encryption capability — a
// pluggable capability, not core control flow. Nothing in
// publisher/consumer requires one; callers that want encrypted attributes
// construct a Codec and call EncryptAttribute/DecryptAttribute themselves
// before/after touching the payload map.
//
// There is no RSA chunked-cipher library anywhere in the example corpus,
// so this is built directly on crypto/rsa and crypto/x509 rather than on a
// grounded third-party package.
type Codec struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// NewCodec builds a Codec from PEM-encoded PKCS#1/PKCS#8 key material.
// Either argument may be nil-equivalent (empty string) when the process
// only needs one direction.
func NewCodec(publicPEM, privatePEM string) (*Codec, error) {
	c := &Codec{}
	if publicPEM != "" {
		pub, err := parsePublicKey(publicPEM)
		if err != nil {
			return nil, fmt.Errorf("envelope: parse public key: %w", err)
		}
		c.public = pub
	}
	if privatePEM != "" {
		priv, err := parsePrivateKey(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("envelope: parse private key: %w", err)
		}
		c.private = priv
	}
	return c, nil
}

func parsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return rsaKey, nil
}

func parsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return rsaKey, nil
}

// EncryptAttribute chunk-encrypts plaintext into a single base64 string:
// each chunkSize-byte slice of plaintext is RSA-OAEP encrypted and
// base64-encoded independently, then the chunks are joined with ".".
func (c *Codec) EncryptAttribute(plaintext string) (string, error) {
	if c.public == nil {
		return "", fmt.Errorf("envelope: codec has no public key configured")
	}
	data := []byte(plaintext)
	var chunks []string
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.public, data[i:end], nil)
		if err != nil {
			return "", fmt.Errorf("envelope: encrypt chunk: %w", err)
		}
		chunks = append(chunks, base64.StdEncoding.EncodeToString(ct))
	}
	return strings.Join(chunks, "."), nil
}

// DecryptAttribute reverses EncryptAttribute.
func (c *Codec) DecryptAttribute(ciphertext string) (string, error) {
	if c.private == nil {
		return "", fmt.Errorf("envelope: codec has no private key configured")
	}
	if ciphertext == "" {
		return "", nil
	}
	chunks := strings.Split(ciphertext, ".")
	var out []byte
	for _, chunk := range chunks {
		ct, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return "", fmt.Errorf("envelope: decode chunk: %w", err)
		}
		pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, c.private, ct, nil)
		if err != nil {
			return "", fmt.Errorf("envelope: decrypt chunk: %w", err)
		}
		out = append(out, pt...)
	}
	return string(out), nil
}
