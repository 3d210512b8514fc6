package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciled records and decision matrix over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      newRouter(st),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the read-only API. All routes serve data already
// persisted by the reconcile and matrix commands; nothing here mutates.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/chemicals/{id}/fields", func(w http.ResponseWriter, req *http.Request) {
		fields, err := st.FieldsFor(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			serverError(w, "list fields", err)
			return
		}
		writeJSON(w, http.StatusOK, fields)
	})

	r.Get("/matrix", func(w http.ResponseWriter, req *http.Request) {
		decisions, err := st.LatestDecisions(req.Context())
		if err != nil {
			serverError(w, "list decisions", err)
			return
		}
		writeJSON(w, http.StatusOK, decisions)
	})

	r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
		a := req.URL.Query().Get("a")
		b := req.URL.Query().Get("b")
		if a == "" || b == "" {
			http.Error(w, `{"error":"query params a and b are required"}`, http.StatusBadRequest)
			return
		}
		log, err := st.DecisionsFor(req.Context(), a, b)
		if err != nil {
			serverError(w, "audit pair", err)
			return
		}
		writeJSON(w, http.StatusOK, log)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("request failed", zap.String("op", op), zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
