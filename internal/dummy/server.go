package dummy

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type ServerConfig struct {
	Port int
}

const (
	defaultSize = 10 << 20 // 10 MB
	chunkSize   = 32 * 1024
)

// Handler returns the dummy origin mux. Exported so tests can mount it on an
// httptest server instead of a real port.
func Handler() http.Handler {
	mux := http.NewServeMux()

	// 1. Fixed-size payload at full speed
	mux.HandleFunc("/file", func(w http.ResponseWriter, r *http.Request) {
		size := queryInt64(r, "size", defaultSize)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		writeZeros(w, size, 0)
	})

	// 2. Rate-limited payload - good for exercising timeouts and sampling
	mux.HandleFunc("/throttled", func(w http.ResponseWriter, r *http.Request) {
		size := queryInt64(r, "size", defaultSize)
		rate := queryInt64(r, "rate", 1<<20) // bytes per second
		w.Header().Set("Content-Type", "application/octet-stream")
		writeZeros(w, size, rate)
	})

	// 3. Error endpoint, status picked by the caller
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		code := int(queryInt64(r, "code", http.StatusInternalServerError))
		if code < 100 || code > 599 {
			// WriteHeader panics outside this range
			code = http.StatusInternalServerError
		}
		http.Error(w, http.StatusText(code), code)
	})

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	return mux
}

// writeZeros streams size zero bytes; with rate > 0 it flushes in slices ten
// times a second to approximate the requested bytes/second.
func writeZeros(w http.ResponseWriter, size, rate int64) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)

	if rate <= 0 {
		for size > 0 {
			n := int64(len(buf))
			if n > size {
				n = size
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			size -= n
		}
		return
	}

	slice := rate / 10
	if slice < 1 {
		slice = 1
	}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for size > 0 {
		remaining := slice
		if remaining > size {
			remaining = size
		}
		for remaining > 0 {
			n := int64(len(buf))
			if n > remaining {
				n = remaining
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			remaining -= n
			size -= n
		}
		if flusher != nil {
			flusher.Flush()
		}
		if size > 0 {
			<-ticker.C
		}
	}
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// Start runs the dummy origin on the configured port in the background.
func Start(cfg ServerConfig) {
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Dummy origin running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /file?size=N, /throttled?size=N&rate=BPS, /error?code=N, /ping")

	server := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()
}
