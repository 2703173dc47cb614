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
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

const (
	partManifest   = "manifest"
	partDirective  = "directive"
	partExtensions = "extensions"

	jsonContentType = "application/json; charset=utf-8"
)

// Part is the first part of an update response: a manifest or a directive
// along with its optional signature
type Part struct {
	Name      string
	Body      []byte
	Signature string
}

func ManifestPart(body []byte, signature string) Part {
	return Part{Name: partManifest, Body: body, Signature: signature}
}

func DirectivePart(body []byte, signature string) Part {
	return Part{Name: partDirective, Body: body, Signature: signature}
}

func (p Part) IsManifest() bool {
	return p.Name == partManifest
}

// extensionsBody is sent with every manifest. No asset needs extra request
// headers
var extensionsBody = []byte(`{"assetRequestHeaders":{}}`)

// EncodeResponse renders the multipart body for a part and returns it along
// with its content type
func EncodeResponse(part Part) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, part.Name))
	header.Set("Content-Type", jsonContentType)
	if part.Signature != "" {
		header.Set(HeaderSignature, part.Signature)
	}
	pw, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(part.Body); err != nil {
		return nil, "", err
	}
	if part.IsManifest() {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, partExtensions))
		header.Set("Content-Type", jsonContentType)
		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(extensionsBody); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/mixed; boundary=" + mw.Boundary(), nil
}

// WriteResponse sends an update response. Nothing is written to w unless
// the whole body could be encoded
func WriteResponse(w http.ResponseWriter, part Part, protocolVersion int) error {
	body, contentType, err := EncodeResponse(part)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set(HeaderProtocolVersion, strconv.Itoa(protocolVersion))
	h.Set(HeaderSfvVersion, "0")
	h.Set("Cache-Control", "private, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}
