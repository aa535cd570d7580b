package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/query"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/version"
)

type packageSummary struct {
	Name     string   `json:"name"`
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

type packageVersion struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Requires    []string `json:"requires,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	Variants    int      `json:"variants,omitempty"`
	Path        string   `json:"path"`
	PackageURL  string   `json:"purl"`
}

type packageDetail struct {
	Name     string           `json:"name"`
	Versions []packageVersion `json:"versions"`
}

// handleListPackages lists package names, optionally filtered by query.
func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	snap := s.ws.Snapshot()
	names := snap.Names()
	if q := r.URL.Query().Get("query"); q != "" {
		names = snap.Search(q)
	}
	out := make([]packageSummary, 0, len(names))
	for _, name := range names {
		out = append(out, summarize(snap, name))
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePackage describes every version of a package, highest first.
func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap := s.ws.Snapshot()
	pkgs := snap.Packages(name)
	if len(pkgs) == 0 {
		s.fail(w, r, rerrors.New(rerrors.ErrCodePackageNotFound, "package %q not found", name))
		return
	}
	detail := packageDetail{Name: name, Versions: make([]packageVersion, 0, len(pkgs))}
	for _, d := range pkgs {
		detail.Versions = append(detail.Versions, describeVersion(d))
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handlePackageReferences(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	locs, err := s.ws.PackageReferences(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(locs))
}

// handlePURL looks a package up by package URL. Without a version the
// latest is returned.
func (s *Server) handlePURL(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("purl")
	name, ver, err := query.ParsePackageURL(raw)
	if err != nil {
		s.fail(w, r, rerrors.Wrap(rerrors.ErrCodeInvalidInput, err, "invalid package URL %q", raw))
		return
	}
	snap := s.ws.Snapshot()
	var (
		d  *manifest.Descriptor
		ok bool
	)
	if ver == "" {
		d, ok = snap.Latest(name)
	} else {
		v, perr := version.Parse(ver)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		d, ok = snap.Lookup(name, v)
	}
	if !ok {
		s.fail(w, r, rerrors.New(rerrors.ErrCodePackageNotFound, "no package matches %s", raw))
		return
	}
	writeJSON(w, http.StatusOK, describeVersion(d))
}

func summarize(snap *repo.Snapshot, name string) packageSummary {
	vs := snap.Versions(name)
	sum := packageSummary{Name: name, Versions: make([]string, len(vs))}
	for i, v := range vs {
		sum.Versions[i] = v.String()
	}
	if d, ok := snap.Latest(name); ok {
		sum.Latest = d.Version.String()
	}
	return sum
}

func describeVersion(d *manifest.Descriptor) packageVersion {
	pv := packageVersion{
		ID:          d.ID(),
		Version:     d.Version.String(),
		Description: d.Description,
		Tools:       d.Tools,
		Variants:    len(d.Variants),
		Path:        d.SourcePath,
		PackageURL:  query.PackageURL(d),
	}
	for _, req := range d.Requires {
		pv.Requires = append(pv.Requires, req.String())
	}
	return pv
}
