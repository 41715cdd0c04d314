// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerPrefixAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New("Worker").WithWriter(&buf)

	log.Info("tick %d", 3)
	log.Warn("slow")
	log.Error("boom: %v", "io")

	out := buf.String()
	assert.Contains(t, out, "[Worker] INFO: tick 3")
	assert.Contains(t, out, "[Worker] WARN: slow")
	assert.Contains(t, out, "[Worker] ERROR: (logger_test.go:")
	assert.Contains(t, out, "boom: io")
}

func TestDebugToggle(t *testing.T) {
	var buf bytes.Buffer
	log := New("Dbg").WithWriter(&buf)

	EnableDebug(false)
	log.Debug("hidden")
	assert.Empty(t, buf.String())

	EnableDebug(true)
	defer EnableDebug(false)
	log.Debug("shown")
	assert.Contains(t, buf.String(), "[Dbg] DEBUG: shown")
}

func TestFatalPanics(t *testing.T) {
	var buf bytes.Buffer
	log := New("F").WithWriter(&buf)
	assert.PanicsWithValue(t, "bad 1", func() { log.Fatal("bad %d", 1) })
	assert.Contains(t, buf.String(), "FATAL")
}

func TestWebServiceToggleDebug(t *testing.T) {
	EnableDebug(false)
	defer EnableDebug(false)

	srv := WebService()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, IsDebug())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebServiceTailWithoutFile(t *testing.T) {
	rec := httptest.NewRecorder()
	WebService().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp.Lines)
}
