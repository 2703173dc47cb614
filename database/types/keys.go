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

import (
	"path"
	"strings"
)

// AssetBlobKey returns the storage key for a build asset file. Keys are
// laid out as <app>/<build>/<file> so that all files of a build share a
// prefix.
func AssetBlobKey(appId string, buildId string, name string) string {
	return path.Join(appId, buildId, strings.TrimPrefix(name, "/"))
}

// ValidBlobKey reports whether a key is usable by every blob store. Keys
// must be relative and must not contain parent directory segments.
func ValidBlobKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}
