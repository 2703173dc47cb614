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

// Package keystore decrypts the app signing keys held in the metadata store
// and loads private keys from disk
package keystore

import (
	"errors"
	"fmt"
)

const (
	DecryptorAesGcm = "aesgcm"
	DecryptorSops   = "sops"
)

var (
	// ErrInsecureFileMode is returned when a key file is readable by group
	// or other users
	ErrInsecureFileMode = errors.New("insecure file permissions")
	// ErrMissingSecret is returned when the aesgcm decryptor has no secret
	ErrMissingSecret = errors.New("signing secret is not set")
	// ErrInvalidCiphertext is returned when a ciphertext is malformed
	ErrInvalidCiphertext = errors.New("invalid encrypted text format")
)

// Decryptor turns a stored signing key ciphertext back into a PEM private key
type Decryptor interface {
	Decrypt(ciphertext string) ([]byte, error)
}

// Encrypter produces a ciphertext that the matching Decryptor accepts
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// Cipher both encrypts and decrypts signing keys
type Cipher interface {
	Decryptor
	Encrypter
}

// New returns the cipher for the named decryptor. The secret is only used
// by aesgcm. The sops cipher takes its KMS keys from the environment
func New(name string, secret string) (Cipher, error) {
	switch name {
	case DecryptorAesGcm, "":
		if secret == "" {
			return nil, ErrMissingSecret
		}
		return NewAesGcm(secret), nil
	case DecryptorSops:
		return NewSops(SopsConfigFromEnv()), nil
	default:
		return nil, fmt.Errorf("unknown decryptor: %s", name)
	}
}
