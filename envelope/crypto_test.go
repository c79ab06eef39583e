package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func generateTestKeyPair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubBytes := x509.MarshalPKCS1PublicKey(&key.PublicKey)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: pubBytes}))

	privBytes := x509.MarshalPKCS1PrivateKey(key)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes}))

	return pubPEM, privPEM
}

func TestCodecEncryptDecryptRoundTrip(t *testing.T) {
	pubPEM, privPEM := generateTestKeyPair(t)
	codec, err := NewCodec(pubPEM, privPEM)
	require.NoError(t, err)

	plaintext := strings.Repeat("attribute-value-", 20)
	ct, err := codec.EncryptAttribute(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ct)

	pt, err := codec.DecryptAttribute(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestCodecChunksLongPlaintext(t *testing.T) {
	pubPEM, privPEM := generateTestKeyPair(t)
	codec, err := NewCodec(pubPEM, privPEM)
	require.NoError(t, err)

	plaintext := strings.Repeat("x", chunkSize*3+10)
	ct, err := codec.EncryptAttribute(plaintext)
	require.NoError(t, err)
	require.Equal(t, 4, len(strings.Split(ct, ".")))

	pt, err := codec.DecryptAttribute(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestCodecMissingKeyErrors(t *testing.T) {
	pubPEM, _ := generateTestKeyPair(t)
	codec, err := NewCodec(pubPEM, "")
	require.NoError(t, err)

	_, err = codec.DecryptAttribute("anything")
	require.Error(t, err)
}
