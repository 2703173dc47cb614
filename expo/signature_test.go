// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expo_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/blinklabs-io/updraft/expo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestSignVerify(t *testing.T) {
	key, keyPEM := testKey(t)
	payload := []byte(`{"type":"noUpdateAvailable"}`)
	header, err := expo.Sign(payload, keyPEM)
	require.NoError(t, err)
	assert.Regexp(t, `^sig="[A-Za-z0-9+/=]+", keyid="main"$`, header)

	require.NoError(t, expo.Verify(payload, header, &key.PublicKey))

	// Any single byte change breaks the signature
	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		require.ErrorIs(t, expo.Verify(mutated, header, &key.PublicKey), expo.ErrInvalidSignature)
	}

	other, _ := testKey(t)
	require.ErrorIs(t, expo.Verify(payload, header, &other.PublicKey), expo.ErrInvalidSignature)
}

func TestSignPKCS1(t *testing.T) {
	key, _ := testKey(t)
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	header, err := expo.Sign([]byte("payload"), keyPEM)
	require.NoError(t, err)
	require.NoError(t, expo.Verify([]byte("payload"), header, &key.PublicKey))
}

func TestSignBadKey(t *testing.T) {
	_, err := expo.Sign([]byte("payload"), []byte("garbage"))
	require.Error(t, err)
}

func TestParseSignature(t *testing.T) {
	params, err := expo.ParseSignature(`sig="abc+/=", keyid="main"`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sig": "abc+/=", "keyid": "main"}, params)

	params, err = expo.ParseSignature(`sig="x",keyid="k"`)
	require.NoError(t, err)
	assert.Equal(t, "k", params["keyid"])

	// Escapes inside strings are decoded
	params, err = expo.ParseSignature(`sig="a\"b\\c", keyid="main"`)
	require.NoError(t, err)
	assert.Equal(t, `a"b\c`, params["sig"])

	for _, bad := range []string{
		`sig`,
		`sig=abc`,
		`sig="abc`,
		`sig="a" keyid="b"`,
		`sig=("a" "b")`,
		`sig=1`,
	} {
		_, err := expo.ParseSignature(bad)
		require.ErrorIs(t, err, expo.ErrInvalidSignature, bad)
	}
}
