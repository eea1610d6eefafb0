package demoserver

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"
)

// DemoServer serves storefront pages that each carry one dark pattern,
// plus a clean control page. Pages have versions that can be switched at
// runtime to simulate a site changing under a watcher.
type DemoServer struct {
	cfg   Config
	pages map[string]PageDefinition

	mu       sync.RWMutex
	versions map[string]int
}

func NewDemoServer(cfg Config) *DemoServer {
	if cfg.InitialVersion < 1 {
		cfg.InitialVersion = 1
	}
	s := &DemoServer{
		cfg:      cfg,
		pages:    make(map[string]PageDefinition),
		versions: make(map[string]int),
	}
	for _, p := range GetAllPages() {
		s.pages[p.Path] = p
	}
	s.reset()
	return s
}

// Handler returns the demo site and its control endpoints.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()
	for path := range s.pages {
		pattern := "GET " + path
		if path == "/" {
			pattern = "GET /{$}"
		}
		mux.HandleFunc(pattern, s.servePage(path))
	}

	mux.HandleFunc("GET /demo/control", s.handleControl)
	mux.HandleFunc("GET /demo/get-versions", s.handleGetVersions)
	mux.HandleFunc("POST /demo/set-version", s.handleSetVersion)
	mux.HandleFunc("POST /demo/bump-all", s.handleBumpAll)
	mux.HandleFunc("POST /demo/reset", s.handleReset)
	return mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *DemoServer) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

func (s *DemoServer) Version(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[path]
}

// SetVersion switches the version served for path. It reports false for
// an unknown path.
func (s *DemoServer) SetVersion(path string, version int) bool {
	if _, ok := s.pages[path]; !ok {
		return false
	}
	s.mu.Lock()
	s.versions[path] = version
	s.mu.Unlock()
	return true
}

func (s *DemoServer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.pages {
		s.versions[path] = s.cfg.InitialVersion
	}
}

// bump moves every page one version forward, stopping at its latest.
func (s *DemoServer) bump() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, p := range s.pages {
		s.versions[path] = min(s.versions[path]+1, p.latest())
	}
}

func (p PageDefinition) versionNumbers() []int {
	vs := make([]int, 0, len(p.Versions))
	for v := range p.Versions {
		vs = append(vs, v)
	}
	sort.Ints(vs)
	return vs
}

func (p PageDefinition) latest() int {
	vs := p.versionNumbers()
	if len(vs) == 0 {
		return 1
	}
	return vs[len(vs)-1]
}

// at returns version v, or the closest earlier one when v is missing.
func (p PageDefinition) at(v int) PageVersion {
	vs := p.versionNumbers()
	i, found := slices.BinarySearch(vs, v)
	switch {
	case found:
		return p.Versions[v]
	case i > 0:
		return p.Versions[vs[i-1]]
	case len(vs) > 0:
		return p.Versions[vs[0]]
	default:
		return PageVersion{}
	}
}

func (s *DemoServer) servePage(path string) http.HandlerFunc {
	def := s.pages[path]
	return func(w http.ResponseWriter, r *http.Request) {
		pv := def.at(s.Version(path))
		ct := pv.ContentType
		if ct == "" {
			ct = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = w.Write([]byte(pv.HTML))
	}
}

// ─── Control endpoints ─────────────────────────────────────────────────

type pageInfo struct {
	Path              string `json:"path"`
	Description       string `json:"description"`
	Category          string `json:"category,omitempty"`
	CurrentVersion    int    `json:"current_version"`
	AvailableVersions []int  `json:"available_versions"`
}

func (s *DemoServer) snapshot() []pageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pageInfo, 0, len(s.pages))
	for path, p := range s.pages {
		out = append(out, pageInfo{
			Path:              path,
			Description:       p.Description,
			Category:          string(p.Category),
			CurrentVersion:    s.versions[path],
			AvailableVersions: p.versionNumbers(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *DemoServer) handleGetVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

// handleSetVersion accepts form fields path and version. Browsers posting
// from the control panel are redirected back to it.
func (s *DemoServer) handleSetVersion(w http.ResponseWriter, r *http.Request) {
	path := r.FormValue("path")
	version, err := strconv.Atoi(r.FormValue("version"))
	if err != nil || version < 1 {
		http.Error(w, "invalid version number", http.StatusBadRequest)
		return
	}
	ok := s.SetVersion(path, version)
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/demo/control", http.StatusSeeOther)
		return
	}
	writeJSON(w, map[string]any{"success": ok, "path": path, "version": version})
}

func (s *DemoServer) handleBumpAll(w http.ResponseWriter, r *http.Request) {
	s.bump()
	s.afterControl(w, r, "all pages bumped")
}

func (s *DemoServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.reset()
	s.afterControl(w, r, "all pages reset")
}

func (s *DemoServer) afterControl(w http.ResponseWriter, r *http.Request, msg string) {
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/demo/control", http.StatusSeeOther)
		return
	}
	writeJSON(w, map[string]any{"success": true, "message": msg})
}

var controlTmpl = template.Must(template.New("control").Parse(`<!DOCTYPE html>
<html>
<head>
<title>patternshield demo store</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; }
table { border-collapse: collapse; width: 100%; }
td, th { border-bottom: 1px solid #ddd; padding: .4rem; text-align: left; }
.current { font-weight: bold; }
</style>
</head>
<body>
<h1>Demo store control</h1>
<p>Switch a page to a later version and run <code>patternshield watch</code> against it to see the change rescanned.</p>
<form method="post" action="/demo/bump-all"><input type="hidden" name="redirect" value="1"><button>Bump all</button></form>
<form method="post" action="/demo/reset"><input type="hidden" name="redirect" value="1"><button>Reset</button></form>
<table>
<tr><th>Page</th><th>Pattern</th><th>Version</th></tr>
{{range .}}
<tr>
<td><a href="{{.Path}}">{{.Path}}</a><br><small>{{.Description}}</small></td>
<td>{{if .Category}}{{.Category}}{{else}}none{{end}}</td>
<td>{{$p := .}}{{range .AvailableVersions}}
<form method="post" action="/demo/set-version" style="display:inline">
<input type="hidden" name="redirect" value="1"><input type="hidden" name="path" value="{{$p.Path}}"><input type="hidden" name="version" value="{{.}}">
<button{{if eq . $p.CurrentVersion}} class="current"{{end}}>v{{.}}</button>
</form>{{end}}</td>
</tr>
{{end}}
</table>
</body>
</html>`))

func (s *DemoServer) handleControl(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = controlTmpl.Execute(w, s.snapshot())
}
