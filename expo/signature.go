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

package expo

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/blinklabs-io/updraft/keystore"
	"github.com/dunglas/httpsfv"
)

// KeyID is the key identifier sent with every signature
const KeyID = "main"

// Sign produces the expo-signature header value for a payload. The payload
// must be the exact bytes that are sent
func Sign(payload []byte, privateKeyPEM []byte) (string, error) {
	key, err := keystore.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	dict := httpsfv.NewDictionary()
	dict.Add("sig", httpsfv.NewItem(base64.StdEncoding.EncodeToString(sig)))
	dict.Add("keyid", httpsfv.NewItem(KeyID))
	header, err := httpsfv.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}
	return header, nil
}

// Verify checks an expo-signature header value against a payload
func Verify(payload []byte, header string, key *rsa.PublicKey) error {
	params, err := ParseSignature(header)
	if err != nil {
		return err
	}
	sigB64, ok := params["sig"]
	if !ok {
		return fmt.Errorf("%w: missing sig", ErrInvalidSignature)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

// ParseSignature decodes a structured field dictionary whose members are all
// strings, as in sig="...", keyid="main"
func ParseSignature(header string) (map[string]string, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	ret := make(map[string]string, len(dict.Names()))
	for _, name := range dict.Names() {
		member, _ := dict.Get(name)
		item, ok := member.(httpsfv.Item)
		if !ok {
			return nil, fmt.Errorf("%w: member %q is an inner list", ErrInvalidSignature, name)
		}
		value, ok := item.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: member %q is not a string", ErrInvalidSignature, name)
		}
		ret[name] = value
	}
	return ret, nil
}
