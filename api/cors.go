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


package api

import (
	"net/http"

	"github.com/blinklabs-io/updraft/expo"
	"github.com/rs/cors"
)

const corsMaxAge = 86400

// cors wraps next with CORS handling for the configured origin. It's a no-op
// when no origin is configured
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.config.CorsOrigin
	if origin == "" {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{
			"Content-Type",
			expo.HeaderProtocolVersion,
			expo.HeaderPlatform,
			expo.HeaderRuntimeVersion,
			expo.HeaderCurrentUpdateID,
			expo.HeaderEmbeddedUpdateID,
			expo.HeaderExpectSignature,
			expo.HeaderAppID,
			expo.HeaderOrganizationID,
			expo.HeaderChannelName,
		},
		ExposedHeaders: []string{
			expo.HeaderProtocolVersion,
			expo.HeaderSfvVersion,
			expo.HeaderSignature,
		},
		MaxAge: corsMaxAge,
	}).Handler(next)
}
