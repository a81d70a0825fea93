package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"mailpostbridge/internal/logging"
	"mailpostbridge/internal/message"
	"mailpostbridge/internal/poster"
	"mailpostbridge/internal/registry"
	"mailpostbridge/internal/token"
)

// newRouter mounts the receiver on POST /mail/{domain}.
func newRouter(reg *registry.Registry, maxBytes int64, log logging.Logger) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/mail/{domain}", handleMail(reg, maxBytes, log)).Methods(http.MethodPost)
	return router
}

// handleMail accepts posted messages for a registered site and checks the
// validation token the same way a receiving site would.
func handleMail(reg *registry.Registry, maxBytes int64, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		domain := mux.Vars(r)["domain"]
		log.Debug(ctx, "Handling posted message", "domain", domain, "remote_addr", r.RemoteAddr)

		site, ok := reg.Lookup(domain)
		if !ok {
			log.Warn(ctx, "Post for unregistered domain", "domain", domain)
			http.Error(w, "Unknown site", http.StatusNotFound)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if !errors.Is(err, http.ErrNotMultipart) {
				log.Error(ctx, "Failed to parse request body", "domain", domain, "error", err.Error())
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
			if err := r.ParseForm(); err != nil {
				log.Error(ctx, "Failed to parse request body", "domain", domain, "error", err.Error())
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
		}

		msg := r.PostFormValue(poster.FieldMessage)
		tok := r.PostFormValue(poster.FieldToken)
		group := r.PostFormValue(poster.FieldGroupName)
		if msg == "" || tok == "" || group == "" {
			log.Warn(ctx, "Post is missing fields", "domain", domain,
				"has_message", msg != "", "has_token", tok != "", "has_group_name", group != "")
			http.Error(w, "message, token and group_name are required", http.StatusBadRequest)
			return
		}

		valid, err := token.Verify(site.TokenAlgorithm, site.ValidationString, []byte(msg), tok)
		if err != nil {
			log.Error(ctx, "Token check failed", "domain", domain, "error", err.Error())
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if !valid {
			log.Warn(ctx, "Token mismatch", "domain", domain, "group_name", group)
			http.Error(w, "Invalid token", http.StatusForbidden)
			return
		}

		summary, err := message.Summarize([]byte(msg))
		args := append([]any{"domain", domain, "group_name", group}, summary.LogArgs()...)
		if err != nil {
			args = append(args, "parse_error", err.Error())
		}
		log.Info(ctx, "Message accepted", args...)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}
}
