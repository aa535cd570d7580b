package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/rezls/internal/workspace"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
	"github.com/matzehuels/rezls/pkg/query"
)

func writeManifest(t *testing.T, root, name, ver string, extra ...string) string {
	t.Helper()
	dir := filepath.Join(root, name, ver)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := "name = \"" + name + "\"\nversion = \"" + ver + "\"\n" + strings.Join(extra, "\n")
	path := filepath.Join(dir, manifest.FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fixture struct {
	root   string
	appURI string
	appSrc string
	ws     *workspace.Workspace
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	writeManifest(t, root, "foo", "1.0")
	writeManifest(t, root, "foo", "2.0", `requires = ["bar-1"]`)
	writeManifest(t, root, "bar", "1.0")
	app := writeManifest(t, root, "app", "1", `requires = ["foo-1+"]`)

	ws := workspace.New(workspace.Options{SearchPaths: []string{root}, Debounce: time.Hour})
	t.Cleanup(func() { ws.Close() })
	if _, err := ws.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	src, err := os.ReadFile(app)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		root:   root,
		appURI: "file://" + filepath.ToSlash(app),
		appSrc: string(src),
		ws:     ws,
		srv:    New(ws, Options{}),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code rerrors.Code) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, status, rec.Body.String())
	}
	body := decodeBody[errorBody](t, rec)
	if body.Error.Code != string(code) {
		t.Errorf("code = %q, want %q", body.Error.Code, code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/v1/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPut, "/v1/stats", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method = %d", rec.Code)
	}
}

func TestStatsAndVersion(t *testing.T) {
	f := newFixture(t)
	stats := decodeBody[workspace.Stats](t, f.do(t, http.MethodGet, "/v1/stats", nil))
	if stats.Generation != 1 || stats.Packages != 4 || stats.Names != 3 {
		t.Errorf("stats = %+v", stats)
	}
	info := decodeBody[map[string]string](t, f.do(t, http.MethodGet, "/v1/version", nil))
	if info["go_version"] == "" {
		t.Errorf("version = %v", info)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	f := newFixture(t)
	uri := f.appURI

	rec := f.do(t, http.MethodPost, "/v1/documents", openRequest{URI: uri, Version: 1, Text: "name = \"app\"\n"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, f.do(t, http.MethodPost, "/v1/documents", openRequest{URI: "", Version: 1}),
		http.StatusBadRequest, rerrors.ErrCodeInvalidURI)

	diags := decodeBody[diagnosticsResponse](t, f.do(t, http.MethodPost, "/v1/diagnostics", documentRequest{URI: uri}))
	if !diags.HasErrors || diags.Version != 1 || diags.Kind != "manifest" {
		t.Errorf("diagnostics of a manifest without version = %+v", diags)
	}

	rec = f.do(t, http.MethodPatch, "/v1/documents", changeRequest{
		URI:     uri,
		Version: 2,
		Changes: []workspace.Change{{Text: f.appSrc}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, f.do(t, http.MethodPatch, "/v1/documents", changeRequest{URI: uri, Version: 2}),
		http.StatusBadRequest, rerrors.ErrCodeInvalidInput)

	diags = decodeBody[diagnosticsResponse](t, f.do(t, http.MethodPost, "/v1/diagnostics", documentRequest{URI: uri}))
	if diags.HasErrors || diags.Version != 2 {
		t.Errorf("diagnostics after fix = %+v", diags)
	}

	docs := decodeBody[[]workspace.Document](t, f.do(t, http.MethodGet, "/v1/documents", nil))
	if len(docs) != 1 || docs[0].URI != uri || docs[0].Version != 2 {
		t.Errorf("documents = %+v", docs)
	}

	if rec := f.do(t, http.MethodDelete, "/v1/documents?uri="+uri, nil); rec.Code != http.StatusNoContent {
		t.Errorf("close = %d", rec.Code)
	}
	expectError(t, f.do(t, http.MethodDelete, "/v1/documents?uri="+uri, nil),
		http.StatusNotFound, rerrors.ErrCodeDocumentNotFound)
	expectError(t, f.do(t, http.MethodPost, "/v1/diagnostics", documentRequest{URI: uri}),
		http.StatusNotFound, rerrors.ErrCodeDocumentNotFound)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	got := decodeBody[diagnosticsResponse](t, f.do(t, http.MethodPost, "/v1/validate", validateRequest{
		URI:  "file:///tmp/context.rxt",
		Text: "{",
	}))
	if got.Kind != "context" || !got.HasErrors {
		t.Errorf("validate broken context = %+v", got)
	}
	expectError(t, f.do(t, http.MethodPost, "/v1/validate", `{"uri": "/a/package.py", "bogus": 1}`),
		http.StatusBadRequest, rerrors.ErrCodeInvalidInput)
	expectError(t, f.do(t, http.MethodPost, "/v1/validate", ""),
		http.StatusBadRequest, rerrors.ErrCodeInvalidInput)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/v1/documents", openRequest{URI: f.appURI, Version: 1, Text: f.appSrc}); rec.Code != http.StatusCreated {
		t.Fatalf("open = %d", rec.Code)
	}
	onFoo := strings.Index(f.appSrc, "foo-1+") + 1

	items := decodeBody[[]query.CompletionItem](t, f.do(t, http.MethodPost, "/v1/completion",
		cursorRequest{URI: f.appURI, Offset: &onFoo}))
	if len(items) == 0 || items[0].Label != "foo" {
		t.Errorf("completion = %+v", items)
	}

	// The same place as a line and character position.
	pos := manifest.NewLineIndex([]byte(f.appSrc)).Position(onFoo)
	hover := decodeBody[*query.HoverInfo](t, f.do(t, http.MethodPost, "/v1/hover",
		cursorRequest{URI: f.appURI, Position: &pos}))
	if hover == nil || hover.Package != "foo-2.0" {
		t.Errorf("hover = %+v", hover)
	}

	defs := decodeBody[[]query.Location](t, f.do(t, http.MethodPost, "/v1/definition",
		cursorRequest{URI: f.appURI, Offset: &onFoo}))
	if len(defs) == 0 || defs[0].Package != "foo-2.0" {
		t.Errorf("definition = %+v", defs)
	}

	refs := decodeBody[[]query.Location](t, f.do(t, http.MethodPost, "/v1/references",
		cursorRequest{URI: f.appURI, Offset: &onFoo}))
	if len(refs) != 1 || refs[0].Package != "app-1" {
		t.Errorf("references = %+v", refs)
	}

	syms := decodeBody[[]query.Symbol](t, f.do(t, http.MethodPost, "/v1/symbols/document", documentRequest{URI: f.appURI}))
	if len(syms) != 3 || syms[0].Name != "name" {
		t.Errorf("document symbols = %+v", syms)
	}
	wsyms := decodeBody[[]query.Symbol](t, f.do(t, http.MethodGet, "/v1/symbols/workspace?query=ba", nil))
	if len(wsyms) != 1 || wsyms[0].Name != "bar" {
		t.Errorf("workspace symbols = %+v", wsyms)
	}

	expectError(t, f.do(t, http.MethodPost, "/v1/hover", cursorRequest{URI: f.appURI}),
		http.StatusBadRequest, rerrors.ErrCodeInvalidInput)
	expectError(t, f.do(t, http.MethodPost, "/v1/completion", cursorRequest{URI: "file:///closed/package.py", Offset: &onFoo}),
		http.StatusNotFound, rerrors.ErrCodeDocumentNotFound)
}

func TestPackages(t *testing.T) {
	f := newFixture(t)

	all := decodeBody[[]packageSummary](t, f.do(t, http.MethodGet, "/v1/packages", nil))
	if len(all) != 3 || all[0].Name != "app" || all[2].Name != "foo" {
		t.Fatalf("packages = %+v", all)
	}
	if foo := all[2]; foo.Latest != "2.0" || len(foo.Versions) != 2 || foo.Versions[0] != "2.0" {
		t.Errorf("foo summary = %+v", foo)
	}
	found := decodeBody[[]packageSummary](t, f.do(t, http.MethodGet, "/v1/packages?query=FO", nil))
	if len(found) != 1 || found[0].Name != "foo" {
		t.Errorf("search = %+v", found)
	}

	detail := decodeBody[packageDetail](t, f.do(t, http.MethodGet, "/v1/packages/foo", nil))
	if len(detail.Versions) != 2 || detail.Versions[0].ID != "foo-2.0" || detail.Versions[0].Requires[0] != "bar-1" {
		t.Errorf("detail = %+v", detail)
	}
	if !strings.HasPrefix(detail.Versions[0].PackageURL, "pkg:generic/rez/foo@2.0") {
		t.Errorf("purl = %q", detail.Versions[0].PackageURL)
	}
	expectError(t, f.do(t, http.MethodGet, "/v1/packages/nope", nil), http.StatusNotFound, rerrors.ErrCodePackageNotFound)

	refs := decodeBody[[]query.Location](t, f.do(t, http.MethodGet, "/v1/packages/bar/references", nil))
	if len(refs) != 1 || refs[0].Package != "foo-2.0" {
		t.Errorf("references to bar = %+v", refs)
	}

	tests := []struct {
		purl   string
		status int
		id     string
	}{
		{"pkg:generic/rez/foo@1.0", http.StatusOK, "foo-1.0"},
		{"pkg:generic/rez/foo", http.StatusOK, "foo-2.0"},
		{"pkg:generic/rez/foo@3.0", http.StatusNotFound, ""},
		{"pkg:npm/foo@1.0", http.StatusBadRequest, ""},
		{"not a purl", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, "/v1/purl?purl="+url.QueryEscape(tt.purl), nil)
		if rec.Code != tt.status {
			t.Errorf("purl %q: status %d, want %d", tt.purl, rec.Code, tt.status)
			continue
		}
		if tt.id != "" {
			if got := decodeBody[packageVersion](t, rec); got.ID != tt.id {
				t.Errorf("purl %q: id %q, want %q", tt.purl, got.ID, tt.id)
			}
		}
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/resolve", resolveRequest{Roots: []string{"app"}, Formats: []string{"dot"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve = %d %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[resolveResponse](t, rec)
	if got.Cached || got.TaskID == "" || got.Generation != 1 {
		t.Errorf("first resolve = %+v", got)
	}
	var ids []string
	for _, p := range got.Context.Packages {
		ids = append(ids, p.ID())
	}
	if strings.Join(ids, " ") != "bar-1.0 foo-2.0 app-1" {
		t.Errorf("packages = %v", ids)
	}
	if !strings.HasPrefix(string(got.Artifacts["dot"]), "digraph") {
		t.Errorf("dot artifact = %q", got.Artifacts["dot"])
	}

	again := decodeBody[resolveResponse](t, f.do(t, http.MethodPost, "/v1/resolve", resolveRequest{Roots: []string{"app"}}))
	if !again.Cached {
		t.Error("second resolve was not served from cache")
	}

	expectError(t, f.do(t, http.MethodPost, "/v1/resolve", resolveRequest{Roots: []string{"app", "!foo"}}),
		http.StatusUnprocessableEntity, rerrors.ErrCodeConflict)
	expectError(t, f.do(t, http.MethodPost, "/v1/resolve", resolveRequest{Roots: []string{"app"}, Formats: []string{"gif"}}),
		http.StatusBadRequest, rerrors.ErrCodeInvalidInput)

	tasks := decodeBody[[]workspace.Task](t, f.do(t, http.MethodGet, "/v1/tasks", nil))
	if len(tasks) != 0 {
		t.Errorf("tasks after completion = %+v", tasks)
	}
	expectError(t, f.do(t, http.MethodDelete, "/v1/tasks/nope", nil), http.StatusNotFound, rerrors.ErrCodeNotFound)
}

func TestCommands(t *testing.T) {
	f := newFixture(t)
	names := decodeBody[[]string](t, f.do(t, http.MethodGet, "/v1/commands", nil))
	if len(names) != 3 {
		t.Errorf("commands = %v", names)
	}

	stats := decodeBody[workspace.Stats](t, f.do(t, http.MethodPost, "/v1/commands/"+workspace.CommandReload, nil))
	if stats.Generation != 2 {
		t.Errorf("generation after reload = %d", stats.Generation)
	}

	got := decodeBody[resolveResponse](t, f.do(t, http.MethodPost, "/v1/commands/"+workspace.CommandRebuildDependencies,
		commandRequest{Args: []string{"foo-2"}}))
	if got.Cached || len(got.Context.Packages) != 2 {
		t.Errorf("rebuild = %+v", got)
	}

	expectError(t, f.do(t, http.MethodPost, "/v1/commands/rez.nope", nil), http.StatusBadRequest, rerrors.ErrCodeUnsupported)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	cur := decodeBody[workspace.Settings](t, f.do(t, http.MethodGet, "/v1/settings", nil))
	if len(cur.SearchPaths) != 1 || cur.SearchPaths[0] != f.root {
		t.Fatalf("settings = %+v", cur)
	}

	other := t.TempDir()
	writeManifest(t, other, "solo", "1.0")
	cur.SearchPaths = []string{other}
	cur.Validation.Style = true
	got := decodeBody[workspace.Settings](t, f.do(t, http.MethodPut, "/v1/settings", cur))
	if !got.Validation.Style || got.SearchPaths[0] != other {
		t.Errorf("updated settings = %+v", got)
	}
	if stats := f.ws.Stats(); stats.Names != 1 {
		t.Errorf("names after switching paths = %d", stats.Names)
	}

	expectError(t, f.do(t, http.MethodPut, "/v1/settings", `{"search_paths": [""]}`),
		http.StatusBadRequest, rerrors.ErrCodeInvalidPath)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code rerrors.Code
		want int
	}{
		{rerrors.ErrCodeParse, http.StatusBadRequest},
		{rerrors.ErrCodeConfig, http.StatusBadRequest},
		{rerrors.ErrCodePackageNotFound, http.StatusNotFound},
		{rerrors.ErrCodeCycle, http.StatusUnprocessableEntity},
		{rerrors.ErrCodeCanceled, http.StatusConflict},
		{rerrors.ErrCodeTimeout, http.StatusGatewayTimeout},
		{rerrors.ErrCodeIO, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.code); got != tt.want {
			t.Errorf("statusOf(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWriteErrorRetriable(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, rerrors.New(rerrors.ErrCodeTimeout, "resolve took too long"))
	body := decodeBody[errorBody](t, rec)
	if rec.Code != http.StatusGatewayTimeout || !body.Error.Retriable || body.Error.Message != "resolve took too long" {
		t.Errorf("timeout = %d %+v", rec.Code, body)
	}

	rec = httptest.NewRecorder()
	writeError(rec, errors.New("boom"))
	if body := decodeBody[errorBody](t, rec); body.Error.Code != string(rerrors.ErrCodeInternal) {
		t.Errorf("plain error = %+v", body)
	}
}

func TestRecoverer(t *testing.T) {
	ws := workspace.New(workspace.Options{})
	t.Cleanup(func() { ws.Close() })
	s := New(ws, Options{})
	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody[errorBody](t, rec); !strings.Contains(body.Error.Message, "kaboom") {
		t.Errorf("body = %+v", body)
	}
}

type recordingHTTPHooks struct {
	observability.NoopHTTPHooks
	mu        sync.Mutex
	responses []string
	errors    int
}

func (h *recordingHTTPHooks) OnResponse(_ context.Context, method, path string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, method+" "+path)
}

func (h *recordingHTTPHooks) OnError(context.Context, string, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors++
}

func TestHTTPHooks(t *testing.T) {
	hooks := &recordingHTTPHooks{}
	observability.SetHTTPHooks(hooks)
	defer observability.Reset()

	f := newFixture(t)
	f.do(t, http.MethodGet, "/v1/packages/foo", nil)
	f.do(t, http.MethodGet, "/v1/packages/nope", nil)

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.responses) != 2 || hooks.responses[0] != "GET /v1/packages/{name}" {
		t.Errorf("responses = %v", hooks.responses)
	}
	if hooks.errors != 1 {
		t.Errorf("errors = %d, want 1", hooks.errors)
	}
}

func TestListenAndServe(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.srv.ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a.String() })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("ListenAndServe: %v", err)
	}
	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
