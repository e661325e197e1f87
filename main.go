package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"starsync-go-srv/internal/catalog"
	"starsync-go-srv/internal/matcher"
	"starsync-go-srv/internal/models"
	"starsync-go-srv/internal/parser"
	"starsync-go-srv/internal/subsonic"
)

/* =========================
   Recovery Middleware
   ========================= */

func RecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n%s", err, debug.Stack())
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

/* =========================
   SSE Helpers
   ========================= */

func setupSSE(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return flusher, nil
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Println("SSE marshal error:", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	flusher.Flush()
}

/* =========================
   Observer
   ========================= */

// sseObserver forwards progress and outcomes to the SSE stream and mirrors
// the notable ones to the server log.
type sseObserver struct {
	send  func(v any)
	rated int
}

func (o *sseObserver) Info(message string) {
	o.send(map[string]string{"status": "info", "message": message})
}

func (o *sseObserver) IndexProgress(artist, album string, tracks int) {
	o.send(map[string]any{
		"status": "indexing",
		"artist": artist,
		"album":  album,
		"tracks": tracks,
	})
}

func (o *sseObserver) TrackOutcome(res *models.MatchResult) {
	o.rated++
	if res.MatchStatus == "FOUND" {
		log.Printf("found %d track(s) for %s", len(res.TrackIDs), res.Label())
	} else {
		log.Printf("no tracks found for %s", res.Label())
	}
	o.send(map[string]any{
		"status": "processing",
		"index":  o.rated,
		"result": res,
	})
}

func (o *sseObserver) MutationOutcome(res *models.MatchResult, m models.MutationOutcome) {
	if !m.OK {
		log.Printf("%s(%s) failed for %s: %s", m.Op, m.TrackID, res.Label(), m.Error)
	}
	o.send(map[string]any{
		"status":   "mutation",
		"track":    res.Label(),
		"mutation": m,
	})
}

/* =========================
   Handler
   ========================= */

type server struct {
	cache     *catalog.Cache
	client    *subsonic.Client
	threshold float64
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	/* =========================
	   CORS Preflight
	   ========================= */

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx := r.Context()

	earlyFail := func(msg string, code int) {
		http.Error(w, msg, code)
	}

	/* =========================
	   Auth / Reachability (NO SSE YET)
	   ========================= */

	if err := s.client.Ping(ctx); err != nil {
		earlyFail("Remote server unreachable: "+err.Error(), http.StatusBadGateway)
		return
	}

	/* =========================
	   Parse Request (NO SSE)
	   ========================= */

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		earlyFail("Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		earlyFail("Missing library export upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	dryRun := r.FormValue("dry_run") == "true"
	refresh := r.FormValue("refresh") == "true"

	threshold := s.threshold
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 5 {
			earlyFail("threshold must be a number between 0 and 5", http.StatusBadRequest)
			return
		}
		threshold = f
	}

	/* =========================
	   SSE Setup (SAFE POINT)
	   ========================= */

	flusher, err := setupSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	send := func(v any) { sendEvent(w, flusher, v) }
	obs := &sseObserver{send: send}

	obs.Info("connected to " + s.client.BaseURL)

	/* =========================
	   Catalog Index (cache or build)
	   ========================= */

	if refresh {
		if err := s.cache.Clear(); err != nil {
			log.Printf("cache clear failed: %v", err)
		}
	}

	index := s.cache.Load()
	if index == nil {
		obs.Info("building catalog index")
		index, err = catalog.Build(ctx, s.client, obs)
		if err != nil {
			log.Printf("index build aborted: %v", err)
			send(map[string]string{
				"status":  "error",
				"message": "Catalog unavailable: " + err.Error(),
			})
			return
		}
		if err := s.cache.Save(index); err != nil {
			log.Printf("failed to cache index: %v", err)
		}
	} else {
		obs.Info("catalog index loaded from cache")
	}

	/* =========================
	   Match & Dispatch
	   ========================= */

	m := &matcher.Matcher{Index: index, Threshold: threshold}
	p := &parser.LibraryParser{}

	report := models.Report{SourceName: header.Filename, DryRun: dryRun}

	stats, err := p.Parse(file, func(rec models.TrackRecord) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res := m.Match(rec)
		obs.TrackOutcome(res)

		if res.MatchStatus == "FOUND" {
			report.Matched++
			if !dryRun {
				m.Dispatch(ctx, s.client, res, obs)
			}
		} else {
			report.NotFound++
		}

		for _, mut := range res.Mutations {
			report.Mutations++
			if !mut.OK {
				report.Failures++
			}
		}
		return nil
	})
	if err != nil {
		log.Println("Client disconnected or stream failed:", err)
		return
	}

	/* =========================
	   Final
	   ========================= */

	report.Parsed = stats.Tracks
	report.Rated = stats.Rated
	report.Timestamp = time.Now().Format(time.RFC3339)

	send(map[string]any{
		"status": "complete",
		"report": report,
	})
}

/* =========================
   Main
   ========================= */

func main() {
	// .env is optional; deployments may set the environment directly.
	_ = godotenv.Load()

	// 1. Validate Environment Variables (Fail fast)
	baseURL := os.Getenv("SUBSONIC_URL")
	user := os.Getenv("SUBSONIC_USER")
	pass := os.Getenv("SUBSONIC_PASS")
	if baseURL == "" || user == "" || pass == "" {
		log.Fatal("CRITICAL: SUBSONIC_URL, SUBSONIC_USER and SUBSONIC_PASS must be set in environment")
	}

	threshold := 4.0
	if v := os.Getenv("FAVORITE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 5 {
			log.Fatalf("Invalid FAVORITE_THRESHOLD %q: must be a number between 0 and 5", v)
		}
		threshold = f
	}

	// 2. Index Cache Setup
	cachePath := os.Getenv("CACHE_DB")
	if cachePath == "" {
		cachePath = "./data/catalog.db"
	}
	cache, err := catalog.OpenCache(cachePath)
	if err != nil {
		log.Fatalf("Failed to open index cache: %v", err)
	}
	defer cache.Close()

	// 3. Initialize Long-Lived Subsonic Client
	client := subsonic.NewClient(baseURL, user, pass)
	if err := client.Ping(context.Background()); err != nil {
		log.Printf("WARNING: initial ping of %s failed: %v", baseURL, err)
	}

	srv := &server{cache: cache, client: client, threshold: threshold}

	// 4. Routing
	http.HandleFunc("/api/v1/sync", RecoveryMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodOptions {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		srv.handleSync(w, r)
	}))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Star rating sync engine listening on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}
