package internal

import (
	"embed"
	"fmt"
	"html/template"
	"inchat/contract"
	"inchat/repositories"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed inspect.html
var templatesFS embed.FS

const defaultPrefix = "rec:"

type PageData struct {
	Prefix string
	Items  []repositories.KeyInfo
}

// NewDebugHandler exposes the badger key space under /inspect?prefix=, a
// channel history dump under /channel?id= and the prometheus registry under
// /metrics.
func NewDebugHandler(db *badger.DB, chat contract.IChatService, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}
		items, err := repositories.Inspect(db, prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, PageData{Prefix: prefix, Items: items})
	})
	mux.HandleFunc("/channel", func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "invalid channel id", http.StatusBadRequest)
			return
		}
		channel, ok, err := chat.GetChannel(r.Context(), id)
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		case !ok:
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s  %s  version %s\n\n", channel.ID, channel.Value.Name, channel.Version)
		for user, role := range channel.Value.Roles {
			fmt.Fprintf(w, "%-12s %s\n", role, user)
		}
		fmt.Fprintln(w)
		for _, e := range channel.Value.Events {
			fmt.Fprintf(w, "%s  %-7s %-12s %s\n", e.Value.Time.Format(time.RFC3339), e.Value.Kind, e.Value.Sender, e.Value.Message)
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// StartDebugServer serves NewDebugHandler in the background. The caller
// owns shutdown of the returned server.
func StartDebugServer(db *badger.DB, chat contract.IChatService, port int, gatherer prometheus.Gatherer, log *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", port),
		Handler: NewDebugHandler(db, chat, gatherer),
	}
	go func() {
		log.Info("Starting debug server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug server stopped", "error", err)
		}
	}()
	return server
}
