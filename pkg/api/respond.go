// Copyright 2025 Kadir Pekel
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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kadirpekel/codegate/pkg/models"
)

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode api response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("api request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		respond(w, status, errorBody("internal server error"))
		return
	}
	respond(w, status, errorBody(err.Error()))
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	respond(w, http.StatusBadRequest, errorBody(fmt.Sprintf(format, args...)))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// statusOf maps the storage sentinels onto the API's error taxonomy.
// Anything unrecognized is an internal error whose detail stays in the
// logs.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrWorkspaceNotFound),
		errors.Is(err, models.ErrProviderNotFound),
		errors.Is(err, models.ErrPersonaNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrWorkspaceExists),
		errors.Is(err, models.ErrProviderExists),
		errors.Is(err, models.ErrPersonaExists),
		errors.Is(err, models.ErrWorkspaceAlreadyActive),
		errors.Is(err, models.ErrWorkspaceArchived),
		errors.Is(err, models.ErrWorkspaceActive),
		errors.Is(err, models.ErrDefaultWorkspace):
		return http.StatusConflict
	case errors.Is(err, models.ErrModelNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func logRefreshFailure(err error) {
	slog.Error("failed to refresh routing registry", "error", err)
}
