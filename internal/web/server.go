package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"locaty/internal/heading"
	"locaty/internal/notify"
	"locaty/internal/session"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Session is the part of the session controller the web layer drives.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	HandleAction(a session.Action) error
	SetBackgrounded(background bool)
	Subscribe(buffer int) (int, <-chan heading.Result)
	Unsubscribe(id int)
	Latest() heading.Result
	Snapshot() session.Snapshot
}

var streamPingInterval = 15 * time.Second

// Handler serves the API and UI. Sessions started over HTTP run under
// baseCtx rather than the request context.
func Handler(baseCtx context.Context, sess Session, presence *Presence, status *Status, settings SettingsStore, logs *LogBuffer) http.Handler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if status == nil {
		status = NewStatus()
	}
	if presence == nil {
		presence = NewPresence(sess, sess)
	}
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		snap.Session = sess.Snapshot()
		snap.Heading = NewHeadingPayload(sess.Latest())
		snap.Surfaces = SurfaceCounts{Open: presence.Len(), Visible: presence.Visible()}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("/api/heading", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, NewHeadingPayload(sess.Latest()))
	})

	mux.HandleFunc("/api/heading/stream", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		serveStream(w, r, presence)
	})

	mux.HandleFunc("/api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if err := sess.Start(baseCtx); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, session.ErrNoSource) {
				code = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), code)
			return
		}
		presence.Sync()
		writeJSON(w, http.StatusOK, sess.Snapshot())
	})

	mux.HandleFunc("/api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if err := sess.Stop(); err != nil {
			log.Printf("web: stop: %v", err)
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	})

	mux.HandleFunc("/api/session/action", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<10))
		if err != nil {
			http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
			return
		}
		a, err := notify.ParseAction(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := sess.HandleAction(a); err != nil {
			log.Printf("web: action %q: %v", a.Name, err)
		}
		writeJSON(w, http.StatusOK, sess.Snapshot())
	})

	mux.HandleFunc("/api/session/visibility", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		id := strings.TrimSpace(r.URL.Query().Get("surface"))
		surf, ok := presence.Lookup(id)
		if !ok {
			http.Error(w, "unknown surface", http.StatusNotFound)
			return
		}
		var in struct {
			Visible *bool `json:"visible"`
		}
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil || in.Visible == nil {
			http.Error(w, `body must be {"visible":true|false}`, http.StatusBadRequest)
			return
		}
		if *in.Visible {
			surf.Show()
		} else {
			surf.Hide()
		}
		writeJSON(w, http.StatusOK, SurfaceCounts{Open: presence.Len(), Visible: presence.Visible()})
	})

	mux.Handle("/api/settings", settings.Handler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	if assetsFS != nil {
		fileServer := http.FileServer(http.FS(assetsFS))
		mux.Handle("/assets/", http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			fileServer.ServeHTTP(w, r)
		})))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		// SPA shell: serve the UI for / and any unknown paths (except /api/* and /assets/*).
		if r.URL.Path != "/" {
			if path.Dir(r.URL.Path) == "/api" || path.Dir(r.URL.Path) == "/assets" {
				http.NotFound(w, r)
				return
			}
		}

		if assetsFS == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>Locaty</title></head><body>")
			_, _ = fmt.Fprintf(w, "<h1>Locaty</h1><p>Web UI is unavailable. Use <a href=\"/api/heading\">/api/heading</a>.</p>")
			_, _ = fmt.Fprintf(w, "<pre>%s</pre></body></html>", sess.Latest())
			return
		}

		b, err := fs.ReadFile(assetsFS, "index.html")
		if err != nil {
			http.Error(w, "ui unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	})

	return mux
}

// serveStream sends results as Server-Sent Events. The connection counts as
// a visible surface until the client reports otherwise or disconnects.
func serveStream(w http.ResponseWriter, r *http.Request, presence *Presence) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server's read and write timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	surf := presence.Open(r.URL.Query().Get("hidden") != "1")
	defer surf.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "event: surface\ndata: {\"id\":%q}\n\n", surf.ID()); err != nil {
		return
	}
	flusher.Flush()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res, ok := <-surf.Results():
			if !ok {
				return
			}
			b, err := json.Marshal(NewHeadingPayload(res))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: heading\ndata: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, sess Session, presence *Presence, status *Status, settings SettingsStore, logs *LogBuffer) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(ctx, sess, presence, status, settings, logs),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
		// Open streams end when ctx does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
