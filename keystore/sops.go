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
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sopsapi "github.com/getsops/sops/v3"
	"github.com/getsops/sops/v3/aes"
	scommon "github.com/getsops/sops/v3/cmd/sops/common"
	"github.com/getsops/sops/v3/config"
	"github.com/getsops/sops/v3/decrypt"
	"github.com/getsops/sops/v3/gcpkms"
	awskms "github.com/getsops/sops/v3/kms"
	"github.com/getsops/sops/v3/stores"
	jsonstore "github.com/getsops/sops/v3/stores/json"
	"github.com/getsops/sops/v3/version"
)

const (
	EnvGcpKmsResourceId = "UPDRAFT_GCP_KMS_RESOURCE_ID"
	EnvAwsKmsKeyArns    = "UPDRAFT_AWS_KMS_KEY_ARNS"
	EnvAwsKmsProfile    = "UPDRAFT_AWS_KMS_PROFILE"
	EnvAwsKmsContext    = "UPDRAFT_AWS_KMS_CONTEXT"

	// sopsFormat is the SOPS store used for signing keys. PEM text isn't a
	// structured document, so it's wrapped as a single binary value
	sopsFormat = "binary"
)

var (
	// ErrNoMasterKeys is returned when encrypting without any KMS key
	ErrNoMasterKeys = errors.New("no SOPS master keys configured")
	// ErrAlreadyEncrypted is returned when the plaintext is a SOPS document
	ErrAlreadyEncrypted = errors.New("input is already SOPS encrypted")
)

// SopsConfig selects the KMS master keys new signing keys are encrypted
// with. Each provider with keys forms its own key group, so any one of them
// is enough to decrypt. Decryption reads the keys from the document itself.
type SopsConfig struct {
	// GcpKmsResourceIDs is a comma separated list of GCP KMS key resource ids
	GcpKmsResourceIDs string
	// AwsKmsKeyArns is a comma separated list of AWS KMS key ARNs
	AwsKmsKeyArns string
	AwsProfile    string
	// AwsEncryptionContext is a list of key:value pairs
	AwsEncryptionContext string
}

// SopsConfigFromEnv reads the KMS key selection from the environment
func SopsConfigFromEnv() SopsConfig {
	return SopsConfig{
		GcpKmsResourceIDs:    os.Getenv(EnvGcpKmsResourceId),
		AwsKmsKeyArns:        os.Getenv(EnvAwsKmsKeyArns),
		AwsProfile:           os.Getenv(EnvAwsKmsProfile),
		AwsEncryptionContext: os.Getenv(EnvAwsKmsContext),
	}
}

// Sops stores signing keys as SOPS documents encrypted with KMS keys
type Sops struct {
	keyGroups []sopsapi.KeyGroup
}

func NewSops(cfg SopsConfig) *Sops {
	s := &Sops{}
	var gcpKeys sopsapi.KeyGroup
	for _, k := range gcpkms.MasterKeysFromResourceIDString(cfg.GcpKmsResourceIDs) {
		gcpKeys = append(gcpKeys, k)
	}
	var awsKeys sopsapi.KeyGroup
	var awsContext map[string]*string
	if cfg.AwsEncryptionContext != "" {
		awsContext = awskms.ParseKMSContext(cfg.AwsEncryptionContext)
	}
	for _, k := range awskms.MasterKeysFromArnString(cfg.AwsKmsKeyArns, awsContext, cfg.AwsProfile) {
		awsKeys = append(awsKeys, k)
	}
	for _, group := range []sopsapi.KeyGroup{gcpKeys, awsKeys} {
		if len(group) > 0 {
			s.keyGroups = append(s.keyGroups, group)
		}
	}
	return s
}

// MasterKeys returns the configured master keys in their string form
func (s *Sops) MasterKeys() []string {
	var ret []string
	for _, group := range s.keyGroups {
		for _, k := range group {
			ret = append(ret, k.ToString())
		}
	}
	return ret
}

func (s *Sops) Decrypt(ciphertext string) ([]byte, error) {
	ret, err := decrypt.Data([]byte(ciphertext), sopsFormat)
	if err != nil {
		return nil, fmt.Errorf("sops decrypt: %w", err)
	}
	return ret, nil
}

func (s *Sops) Encrypt(plaintext []byte) (string, error) {
	if len(s.keyGroups) == 0 {
		return "", fmt.Errorf(
			"%w: set %s and/or %s",
			ErrNoMasterKeys,
			EnvGcpKmsResourceId,
			EnvAwsKmsKeyArns,
		)
	}
	var holder stores.SopsFile
	if json.Unmarshal(plaintext, &holder) == nil && holder.Metadata != nil {
		return "", ErrAlreadyEncrypted
	}
	store := jsonstore.NewBinaryStore(&config.JSONBinaryStoreConfig{})
	branches, err := store.LoadPlainFile(plaintext)
	if err != nil {
		return "", fmt.Errorf("load signing key: %w", err)
	}
	tree := sopsapi.Tree{
		Branches: branches,
		Metadata: sopsapi.Metadata{
			KeyGroups: s.keyGroups,
			Version:   version.Version,
		},
	}
	dataKey, errs := tree.GenerateDataKey()
	if len(errs) > 0 {
		return "", fmt.Errorf("generate data key: %w", errors.Join(errs...))
	}
	err = scommon.EncryptTree(scommon.EncryptTreeOpts{
		DataKey: dataKey,
		Tree:    &tree,
		Cipher:  aes.NewCipher(),
	})
	if err != nil {
		return "", fmt.Errorf("encrypt signing key: %w", err)
	}
	out, err := store.EmitEncryptedFile(tree)
	if err != nil {
		return "", fmt.Errorf("emit encrypted signing key: %w", err)
	}
	return string(out), nil
}
