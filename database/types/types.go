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

package types

import "errors"

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrBlobURLUnsupported is returned by blob stores that can only serve
// object bytes directly and have no externally addressable URL
var ErrBlobURLUnsupported = errors.New("blob store does not support URLs")

// ErrBlobStoreUnavailable is returned when blob store cannot be accessed
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

// ErrNoStoreAvailable is returned when no blob or metadata store is available
var ErrNoStoreAvailable = errors.New("no store available")

// ErrInvalidBlobKey is returned for keys that are empty or would escape the
// store root
var ErrInvalidBlobKey = errors.New("invalid blob key")

// ErrAppNotFound is returned when no app matches an app and organization ID
var ErrAppNotFound = errors.New("app not found")

// ErrRuntimeNotFound is returned when no app runtime matches an ID
var ErrRuntimeNotFound = errors.New("app runtime not found")

// ErrBuildNotFound is returned when no build matches an ID
var ErrBuildNotFound = errors.New("build not found")

// ErrBuildNotFinalized is returned when a draft build is used where a
// finalized build is required
var ErrBuildNotFinalized = errors.New("build is not finalized")

// ErrAssetNotFound is returned when no build asset matches an ID
var ErrAssetNotFound = errors.New("asset not found")
