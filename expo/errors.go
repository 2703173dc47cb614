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

// Package expo implements the wire format of the Expo updates protocol:
// request header parsing, manifest assembly, code signing and the
// multipart response framing
package expo

import "errors"

var (
	ErrInvalidRequest             = errors.New("invalid update request")
	ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version, expected either 0 or 1")
	ErrUnsupportedPlatform        = errors.New("unsupported platform, expected either ios or android")
	ErrMissingRuntimeVersion      = errors.New("no runtime version provided")
	ErrMissingAppID               = errors.New("app ID is required")
	ErrMissingOrganizationID      = errors.New("organization ID is required")

	// ErrNoBundle is returned when a build has no launch bundle asset
	ErrNoBundle = errors.New("no bundle found for build")
	// ErrInvalidAssetHash is returned when a stored asset hash is not hex
	ErrInvalidAssetHash = errors.New("invalid asset hash")

	ErrInvalidSignature = errors.New("invalid signature")
)
