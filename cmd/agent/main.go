// opv-agent is a development harness that emulates an agent stream: it
// watches a local directory and pushes full-state snapshot ticks to an
// OpenPreview thread over the live stream. While edits keep landing the
// ticks are busy; once the directory settles it sends a completing tick,
// which starts the auto-deploy countdown.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openpreview/openpreview/pkg/client"
	"github.com/openpreview/openpreview/pkg/types"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var (
		url      = flag.String("url", envOr("OPENPREVIEW_API_URL", "http://localhost:8080"), "OpenPreview API base URL")
		apiKey   = flag.String("api-key", os.Getenv("OPENPREVIEW_API_KEY"), "OpenPreview API key")
		threadID = flag.String("thread", "", "thread ID to stream to (required)")
		dir      = flag.String("dir", ".", "directory to watch")
		interval = flag.Duration("interval", time.Second, "poll interval")
		settle   = flag.Duration("settle", 2*time.Second, "quiet period before the completing tick")
	)
	flag.Parse()

	if *threadID == "" {
		fmt.Fprintln(os.Stderr, "opv-agent: -thread is required")
		os.Exit(1)
	}

	w := &watcher{
		client:   client.NewClient(*url, *apiKey),
		apiKey:   *apiKey,
		threadID: *threadID,
		dir:      *dir,
		interval: *interval,
		settle:   *settle,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("opv-agent: shutting down")
		os.Exit(0)
	}()

	log.Printf("opv-agent: streaming %s to thread %s", *dir, *threadID)
	for {
		if err := w.run(); err != nil {
			log.Printf("opv-agent: stream error: %v (reconnecting in 2s)", err)
		}
		time.Sleep(2 * time.Second)
	}
}

type watcher struct {
	client   *client.Client
	apiKey   string
	threadID string
	dir      string
	interval time.Duration
	settle   time.Duration
}

// run dials the thread stream and sends ticks until the connection drops.
func (w *watcher) run() error {
	header := http.Header{}
	header.Set("X-API-Key", w.apiKey)
	conn, _, err := websocket.DefaultDialer.Dial(w.client.StreamURL(w.threadID, ""), header)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	// Drain server frames; a read error ends the session.
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg types.StreamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			if msg.Type == "status" && msg.Status != nil && msg.Status.State == types.DeployStateReady && msg.Status.Record != nil {
				log.Printf("opv-agent: deployed %s", msg.Status.Record.URL)
			}
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var lastFiles map[string]types.FileState
	var lastChange time.Time
	busy := false

	for {
		select {
		case err := <-readErr:
			return err
		case <-ticker.C:
		}

		files, err := snapshotDir(w.dir)
		if err != nil {
			log.Printf("opv-agent: read directory: %v", err)
			continue
		}

		changed := !sameFiles(files, lastFiles)
		switch {
		case changed:
			lastFiles = files
			lastChange = time.Now()
			busy = true
			if err := w.send(conn, files, true); err != nil {
				return err
			}
			log.Printf("opv-agent: pushed %d files (busy)", len(files))
		case busy && time.Since(lastChange) >= w.settle:
			busy = false
			if err := w.send(conn, files, false); err != nil {
				return err
			}
			log.Printf("opv-agent: directory settled, countdown started")
		}
	}
}

func (w *watcher) send(conn *websocket.Conn, files map[string]types.FileState, busy bool) error {
	return conn.WriteJSON(types.StreamMessage{
		Type:   "update",
		Update: &types.SnapshotUpdate{Files: files, Busy: busy},
	})
}

// snapshotDir reads every regular file under dir, keyed by slash-separated
// relative path. Dependency and VCS directories are skipped.
func snapshotDir(dir string) (map[string]types.FileState, error) {
	files := make(map[string]types.FileState)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules", ".next", "dist":
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			// File vanished between walk and read; next tick catches up.
			return nil
		}
		files[filepath.ToSlash(rel)] = types.FileState{Content: string(data)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func sameFiles(a, b map[string]types.FileState) bool {
	if len(a) != len(b) {
		return false
	}
	for path, fa := range a {
		fb, ok := b[path]
		if !ok || fa.Content != fb.Content {
			return false
		}
	}
	return true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
