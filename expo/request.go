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
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/blinklabs-io/updraft/database/models"
)

const (
	HeaderProtocolVersion  = "expo-protocol-version"
	HeaderPlatform         = "expo-platform"
	HeaderRuntimeVersion   = "expo-runtime-version"
	HeaderCurrentUpdateID  = "expo-current-update-id"
	HeaderEmbeddedUpdateID = "expo-embedded-update-id"
	HeaderExpectSignature  = "expo-expect-signature"
	HeaderSignature        = "expo-signature"
	HeaderSfvVersion       = "expo-sfv-version"
	HeaderAppID            = "ota-app-id"
	HeaderOrganizationID   = "ota-organization-id"
	HeaderChannelName      = "ota-channel-name"

	queryPlatform       = "platform"
	queryRuntimeVersion = "runtime-version"

	DefaultChannel = "production"
)

// UpdateRequest is a validated manifest request from a device
type UpdateRequest struct {
	ProtocolVersion  int
	Platform         models.Platform
	RuntimeVersion   string
	AppID            string
	OrganizationID   string
	Channel          string
	CurrentUpdateID  *string
	EmbeddedUpdateID *string
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// ParseRequest validates the protocol headers of a manifest request. The
// platform and runtime version may also come from the query string
func ParseRequest(header http.Header, query url.Values) (*UpdateRequest, error) {
	ret := &UpdateRequest{}

	versions := header.Values(HeaderProtocolVersion)
	switch len(versions) {
	case 0:
	case 1:
		v, err := strconv.Atoi(versions[0])
		if err != nil || (v != 0 && v != 1) {
			return nil, invalid(ErrUnsupportedProtocolVersion)
		}
		ret.ProtocolVersion = v
	default:
		return nil, invalid(ErrUnsupportedProtocolVersion)
	}

	platform := headerOrQuery(header, HeaderPlatform, query, queryPlatform)
	p, err := models.ParsePlatform(platform)
	if err != nil {
		return nil, invalid(ErrUnsupportedPlatform)
	}
	ret.Platform = p

	ret.RuntimeVersion = headerOrQuery(header, HeaderRuntimeVersion, query, queryRuntimeVersion)
	if ret.RuntimeVersion == "" {
		return nil, invalid(ErrMissingRuntimeVersion)
	}

	ret.CurrentUpdateID = optionalHeader(header, HeaderCurrentUpdateID)
	ret.EmbeddedUpdateID = optionalHeader(header, HeaderEmbeddedUpdateID)

	ret.AppID = header.Get(HeaderAppID)
	if ret.AppID == "" {
		return nil, invalid(ErrMissingAppID)
	}
	ret.OrganizationID = header.Get(HeaderOrganizationID)
	if ret.OrganizationID == "" {
		return nil, invalid(ErrMissingOrganizationID)
	}
	ret.Channel = header.Get(HeaderChannelName)
	if ret.Channel == "" {
		ret.Channel = DefaultChannel
	}
	return ret, nil
}

func headerOrQuery(header http.Header, name string, query url.Values, key string) string {
	if v := header.Get(name); v != "" {
		return v
	}
	return query.Get(key)
}

func optionalHeader(header http.Header, name string) *string {
	values := header.Values(name)
	if len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// SameUpdate reports whether the current and embedded update IDs match.
// Two absent IDs are equal
func (r *UpdateRequest) SameUpdate() bool {
	if r.CurrentUpdateID == nil || r.EmbeddedUpdateID == nil {
		return r.CurrentUpdateID == nil && r.EmbeddedUpdateID == nil
	}
	return *r.CurrentUpdateID == *r.EmbeddedUpdateID
}
