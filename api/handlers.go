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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/blinklabs-io/updraft/database/types"
	"github.com/blinklabs-io/updraft/expo"
	"github.com/blinklabs-io/updraft/update"
)

const (
	rootMessage       = "Expo Updates Server"
	assetCacheControl = "public, max-age=31536000, immutable"
	healthTimeout     = 5 * time.Second
)

func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(
	w http.ResponseWriter,
	status int,
	errStr string,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		Error:   errStr,
		Message: message,
	})
}

// errorStatus maps an error from request handling to a status code and a
// short error name
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, expo.ErrInvalidRequest):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, update.ErrRollbackUnsupported),
		errors.Is(err, update.ErrDirectiveUnsupported):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, update.ErrAppNotFound),
		errors.Is(err, types.ErrAssetNotFound),
		errors.Is(err, types.ErrBlobKeyNotFound):
		return http.StatusNotFound, "Not Found"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, errStr := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		// Internal details stay in the log
		writeError(w, status, errStr, "internal server error")
		return
	}
	s.logger.Debug(
		"request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeError(w, status, errStr, err.Error())
}

// handleRoot handles GET /
func (s *Server) handleRoot(
	w http.ResponseWriter,
	_ *http.Request,
) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write([]byte(rootMessage))
}

// handleHealth handles GET /health and reports database reachability
func (s *Server) handleHealth(
	w http.ResponseWriter,
	r *http.Request,
) {
	if err := s.checkHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "error",
			Database: "unreachable",
			Error:    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Database: "ok",
	})
}

func (s *Server) checkHealth(ctx context.Context) error {
	if s.config.Health == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return s.config.Health.Ping(ctx)
}

// handleManifest handles GET /expo/manifest
func (s *Server) handleManifest(
	w http.ResponseWriter,
	r *http.Request,
) {
	req, err := expo.ParseRequest(r.Header, r.URL.Query())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	result, err := s.config.Resolver.Resolve(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	var part expo.Part
	if result.Manifest != nil {
		body, err := expo.Marshal(result.Manifest)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		part = expo.ManifestPart(body, "")
	} else {
		body, err := expo.Marshal(result.Directive)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		part = expo.DirectivePart(body, "")
	}
	// An empty stored key means the app has no key
	if result.SigningKey != nil && *result.SigningKey != "" {
		sig, err := s.sign(part.Body, *result.SigningKey)
		if err != nil {
			s.logger.Error(
				"failed to sign response",
				"app_id", result.AppID,
				"build_id", result.BuildID,
				"error", err,
			)
			if s.config.FailClosed {
				writeError(
					w,
					http.StatusInternalServerError,
					"Internal Server Error",
					"failed to sign response",
				)
				return
			}
		}
		part.Signature = sig
	}
	if err := expo.WriteResponse(w, part, req.ProtocolVersion); err != nil {
		s.logger.Error(
			"failed to write update response",
			"app_id", result.AppID,
			"error", err,
		)
	}
}

// sign decrypts the app signing key and signs the payload. The decrypted
// key never leaves this function
func (s *Server) sign(payload []byte, encryptedKey string) (string, error) {
	if s.config.Decryptor == nil {
		return "", errors.New("no decryptor configured")
	}
	key, err := s.config.Decryptor.Decrypt(encryptedKey)
	if err != nil {
		return "", err
	}
	defer clear(key)
	return expo.Sign(payload, key)
}

// handleAsset handles GET /expo/assets/{assetId}
func (s *Server) handleAsset(
	w http.ResponseWriter,
	r *http.Request,
) {
	ctx := r.Context()
	asset, err := s.config.Assets.GetAsset(ctx, r.PathValue("assetId"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if asset.Build == nil || asset.Build.IsDraft() {
		writeError(w, http.StatusNotFound, "Not Found", "asset not available")
		return
	}
	url, err := s.config.Blob.URL(ctx, asset.StorageKey, s.config.AssetURLExpiry)
	if err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	if !errors.Is(err, types.ErrBlobURLUnsupported) {
		s.handleError(w, r, err)
		return
	}
	data, err := s.config.Blob.Get(ctx, asset.StorageKey)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	contentType := asset.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", assetCacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug(
			"failed to write asset",
			"asset_id", asset.ID,
			"error", err,
		)
	}
}
