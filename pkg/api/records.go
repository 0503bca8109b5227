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
	"fmt"
	"net/http"
	"strconv"

	"github.com/kadirpekel/codegate/pkg/models"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.resolveWorkspace(w, r)
	if !ok {
		return
	}
	category := models.AlertCategory(r.URL.Query().Get("category"))
	switch category {
	case "", models.AlertInfo, models.AlertCritical:
	default:
		badRequest(w, "unknown alert category %q", category)
		return
	}

	alerts, err := s.Records.Alerts(r.Context(), workspace.ID, category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, alerts)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.resolveWorkspace(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "invalid limit %q", raw)
			return
		}
		limit = n
	}

	messages, err := s.Records.Messages(r.Context(), workspace.ID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, messages)
}

// streamAlerts pushes policy alerts to the client as server-sent
// events. The subscription follows the request context, so a dropped
// dashboard connection unsubscribes itself.
func (s *Server) streamAlerts(w http.ResponseWriter, r *http.Request) {
	if s.Alerts == nil {
		respond(w, http.StatusServiceUnavailable, errorBody("alert notifications are not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respond(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}

	// Subscribe before the headers go out: an alert published the moment
	// the client sees the stream open must already have a buffer to land
	// in.
	sub := s.Alerts.Subscribe(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for alert := range sub {
		payload, err := json.Marshal(alert)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
