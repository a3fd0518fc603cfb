package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/evidentops/reqgate/internal/canon"
	"github.com/evidentops/reqgate/pkg/types"
)

// Manifest mirrors the bundle .manifest file.
type Manifest struct {
	Revision string   `json:"revision"`
	Roots    []string `json:"roots,omitempty"`
}

// Bundle is one loaded policy bundle. Hash is the canonical digest of the
// manifest and is stamped on every decision and report produced from the bundle.
type Bundle struct {
	ID       string
	Path     string
	Manifest Manifest
	Hash     string
}

// Ref names one evaluable entry point inside a loaded bundle.
type Ref struct {
	Bundle  Bundle
	Package string
	Rule    string
}

func (r Ref) Query() string {
	return "data." + r.Package + "." + r.Rule
}

func (r Ref) Provenance() types.PolicyProvenance {
	return r.Bundle.Provenance()
}

// Provenance is the stamp carried by every decision produced from the bundle.
func (b Bundle) Provenance() types.PolicyProvenance {
	return types.PolicyProvenance{
		Bundle:   b.ID,
		Revision: b.Manifest.Revision,
		Hash:     b.Hash,
	}
}

type Source struct {
	ID   string
	Path string
}

// LoadBundle reads and hashes a bundle manifest from a bundle directory.
func LoadBundle(id, path string) (Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Bundle{}, err
	}
	if !info.IsDir() {
		return Bundle{}, fmt.Errorf("bundle path is not a directory: %s", path)
	}

	manifestPath := filepath.Join(path, ".manifest")
	// #nosec G304 -- path comes from operator-configured bundle path.
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Bundle{}, fmt.Errorf("bundle manifest %s: %w", manifestPath, err)
	}

	// Hash the canonical form so reformatting the manifest file does not
	// change the bundle identity.
	hash, err := canon.DigestOf(manifest)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle manifest %s: %w", manifestPath, err)
	}

	return Bundle{
		ID:       id,
		Path:     path,
		Manifest: manifest,
		Hash:     hash,
	}, nil
}

// Registry is the read-only bundle set shared by all workers in a run.
type Registry struct {
	bundles map[string]Bundle
}

func NewRegistry(sources []Source) (*Registry, error) {
	r := &Registry{bundles: make(map[string]Bundle, len(sources))}
	for _, src := range sources {
		if _, ok := r.bundles[src.ID]; ok {
			return nil, fmt.Errorf("duplicate bundle id: %s", src.ID)
		}
		b, err := LoadBundle(src.ID, src.Path)
		if err != nil {
			return nil, fmt.Errorf("load bundle %s: %w", src.ID, err)
		}
		r.bundles[src.ID] = b
	}
	return r, nil
}

// Get returns a loaded bundle by id.
func (r *Registry) Get(id string) (Bundle, bool) {
	b, ok := r.bundles[id]
	return b, ok
}

// IDs lists loaded bundle ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.bundles))
	for id := range r.bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve maps a rubric to an evaluable entry point in the configured bundle set.
func (r *Registry) Resolve(rubric types.Rubric) (Ref, bool) {
	if !rubric.Complete() {
		return Ref{}, false
	}
	b, ok := r.bundles[rubric.Bundle]
	if !ok {
		return Ref{}, false
	}
	return Ref{Bundle: b, Package: rubric.Package, Rule: rubric.Rule}, true
}

// ProvenanceFor returns the best available provenance stamp for a rubric:
// the named bundle when it is loaded, otherwise the first loaded bundle in
// id order. Decisions minted before an entry point resolves still carry a
// hashed policy stamp this way, so blocked and cancelled results survive
// report mapping.
func (r *Registry) ProvenanceFor(rubric types.Rubric) types.PolicyProvenance {
	if b, ok := r.bundles[rubric.Bundle]; ok {
		return b.Provenance()
	}
	ids := r.IDs()
	if len(ids) == 0 {
		return types.PolicyProvenance{}
	}
	return r.bundles[ids[0]].Provenance()
}

// Resolvable reports whether the rubric names a known entry point.
func (r *Registry) Resolvable(rubric types.Rubric) bool {
	_, ok := r.Resolve(rubric)
	return ok
}
