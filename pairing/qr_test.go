// Copyright 2025 ChatBridge
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

package pairing

import (
	"encoding/base64"
	"strings"
	"testing"
)

// TestRenderQR verifies the payload renders to a PNG data URL.
func TestRenderQR(t *testing.T) {
	dataURL, err := RenderQR("2@abc123,def456,ghi789")
	if err != nil {
		t.Fatalf("RenderQR failed: %v", err)
	}

	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("Expected PNG data URL, got %q", dataURL[:min(len(dataURL), 40)])
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		t.Fatalf("Payload is not valid base64: %v", err)
	}
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Error("Decoded payload is not a PNG image")
	}
}

// TestRenderQREmptyPayload verifies an empty payload is rejected.
func TestRenderQREmptyPayload(t *testing.T) {
	if _, err := RenderQR(""); err == nil {
		t.Error("Expected error for empty payload")
	}
}
