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

package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	aesGcmIvSize  = 16
	aesGcmTagSize = 16
	aesGcmKeySize = 32
	// Key derivation matches the upload tooling: a fixed salt with the
	// default scrypt cost parameters
	aesGcmSalt = "salt"
	scryptN    = 16384
	scryptR    = 8
	scryptP    = 1
)

// AesGcm encrypts signing keys with AES-256-GCM using a key derived from a
// shared secret. Ciphertexts have the form ivhex:taghex:cipherhex
type AesGcm struct {
	secret  string
	keyOnce sync.Once
	key     []byte
	keyErr  error
}

func NewAesGcm(secret string) *AesGcm {
	return &AesGcm{secret: secret}
}

// deriveKey runs scrypt once, since it is deliberately slow
func (a *AesGcm) deriveKey() ([]byte, error) {
	a.keyOnce.Do(func() {
		a.key, a.keyErr = scrypt.Key(
			[]byte(a.secret),
			[]byte(aesGcmSalt),
			scryptN,
			scryptR,
			scryptP,
			aesGcmKeySize,
		)
	})
	return a.key, a.keyErr
}

func (a *AesGcm) aead() (cipher.AEAD, error) {
	key, err := a.deriveKey()
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, aesGcmIvSize)
}

func (a *AesGcm) Decrypt(ciphertext string) ([]byte, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return nil, ErrInvalidCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aesGcmIvSize {
		return nil, fmt.Errorf("%w: bad iv", ErrInvalidCiphertext)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != aesGcmTagSize {
		return nil, fmt.Errorf("%w: bad auth tag", ErrInvalidCiphertext)
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidCiphertext)
	}
	aead, err := a.aead()
	if err != nil {
		return nil, err
	}
	// Go expects the tag appended to the ciphertext
	sealed := make([]byte, 0, len(data)+len(tag))
	sealed = append(sealed, data...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt signing key: %w", err)
	}
	return plaintext, nil
}

func (a *AesGcm) Encrypt(plaintext []byte) (string, error) {
	aead, err := a.aead()
	if err != nil {
		return "", err
	}
	iv := make([]byte, aesGcmIvSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	data := sealed[:len(sealed)-aesGcmTagSize]
	tag := sealed[len(sealed)-aesGcmTagSize:]
	return hex.EncodeToString(iv) + ":" +
		hex.EncodeToString(tag) + ":" +
		hex.EncodeToString(data), nil
}
