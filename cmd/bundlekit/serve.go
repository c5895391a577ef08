// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/bundlekit/internal/ui"
	"github.com/kraklabs/bundlekit/pkg/bundle"
)

func runServe(args []string, globals GlobalFlags) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8484", "Listen address")
	watch := fs.StringArray("watch", nil, "Bundle paths to register and watch for changes")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: bundlekit serve [--addr host:port] [--watch <bundle>]...

Serves registry status over HTTP:

  GET /healthz        liveness
  GET /bundles        registered bundles as JSON
  GET /metrics        Prometheus metrics

Bundles named with --watch are registered up front and their caches are
flushed automatically when their contents change on disk.
`)
	}
	_ = fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var watcher *bundle.Watcher
	if len(*watch) > 0 {
		var err error
		watcher, err = bundle.NewWatcher(logger)
		if err != nil {
			logger.Error("cannot start watcher", "error", err)
			return 1
		}
		defer watcher.Close()
		for _, path := range *watch {
			b, err := bundle.New(path)
			if err != nil {
				logger.Error("cannot open bundle", "path", path, "error", err)
				return 1
			}
			// Kept registered for the server's lifetime.
			if err := watcher.Watch(b); err != nil {
				logger.Warn("cannot watch bundle", "path", path, "error", err)
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/bundles", func(w http.ResponseWriter, _ *http.Request) {
		type entry struct {
			Path       string `json:"path"`
			Identifier string `json:"identifier,omitempty"`
			Layout     int    `json:"layout"`
			Loaded     bool   `json:"loaded"`
		}
		var entries []entry
		for _, b := range bundle.AllBundles() {
			entries = append(entries, entry{
				Path:       b.Path(),
				Identifier: b.Identifier(),
				Layout:     int(b.Layout()),
				Loaded:     b.IsLoaded(),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	if !globals.Quiet {
		ui.Successf("listening on http://%s", *addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	case <-sigCh:
		_ = server.Close()
		if !globals.Quiet {
			ui.Info("shutting down")
		}
		return 0
	}
}
