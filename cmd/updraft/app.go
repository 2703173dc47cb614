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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/updraft/database"
	"github.com/blinklabs-io/updraft/keystore"
	"github.com/spf13/cobra"
)

func appCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage apps",
	}
	cmd.AddCommand(appListCommand(), appSetSigningKeyCommand())
	return cmd
}

func appListCommand() *cobra.Command {
	var organizationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				apps, err := db.Apps(ctx, organizationID)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				for _, app := range apps {
					signed := "unsigned"
					if app.SigningKey != nil {
						signed = "signed"
					}
					fmt.Fprintf(
						w,
						"%s\t%s\t%s\t%s\n",
						app.ID,
						app.OrganizationID,
						app.Slug,
						signed,
					)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&organizationID, "organization", "", "only list apps of this organization")
	return cmd
}

func appSetSigningKeyCommand() *cobra.Command {
	var keyFile string
	var remove bool
	cmd := &cobra.Command{
		Use:   "set-signing-key <appId>",
		Short: "Store the encrypted manifest signing key of an app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove == (keyFile != "") {
				return errors.New("exactly one of --key-file and --remove is required")
			}
			var encrypted *string
			if !remove {
				cfg, err := configFromCmd(cmd)
				if err != nil {
					return err
				}
				pemData, err := keystore.LoadPrivateKeyFile(keyFile)
				if err != nil {
					return err
				}
				defer clear(pemData)
				cipher, err := keystore.New(cfg.Signing.Decryptor, cfg.Signing.Secret)
				if err != nil {
					return err
				}
				ciphertext, err := cipher.Encrypt(pemData)
				if err != nil {
					return fmt.Errorf("encrypt signing key: %w", err)
				}
				encrypted = &ciphertext
			}
			return withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
				if err := db.SetSigningKey(ctx, args[0], encrypted); err != nil {
					return err
				}
				if remove {
					fmt.Fprintf(cmd.OutOrStdout(), "removed signing key of app %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "stored signing key of app %s\n", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM encoded RSA private key")
	cmd.Flags().BoolVar(&remove, "remove", false, "remove the signing key")
	return cmd
}
