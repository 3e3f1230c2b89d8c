package entity

import (
	"fmt"

	"github.com/hadronized/demo-05/errors"
)

// ProbeFunc inspects raw content to disambiguate representations sharing an
// extension, typically by reading a JSON "type" marker.
type ProbeFunc func(content []byte) bool

// Signature describes which sources a representation accepts: an extension,
// an optional sub-extension (the name.sub.ext convention) and an optional
// content probe.
type Signature struct {
	Ext    string
	SubExt string
	Probe  ProbeFunc
}

// Matches reports whether src (with its raw content) satisfies the signature.
func (sig Signature) Matches(src Source, content []byte) bool {
	if src.Ext() != sig.Ext {
		return false
	}
	if sig.SubExt != "" && src.SubExt() != sig.SubExt {
		return false
	}
	if sig.Probe != nil && !sig.Probe(content) {
		return false
	}
	return true
}

// String renders the signature for logs and errors.
func (sig Signature) String() string {
	s := "." + sig.Ext
	if sig.SubExt != "" {
		s = "." + sig.SubExt + s
	}
	if sig.Probe != nil {
		s += "+probe"
	}
	return s
}

// ParseContext carries everything a parse function may need: the source, its
// raw content, and dependency recording for multi-file entities.
type ParseContext struct {
	Source  Source
	Content []byte

	deps     []string
	siblings [][]byte
}

// ReadSibling reads a path relative to the source and records it as a
// dependency so the watcher reloads this entity when the sibling changes.
// The sibling bytes also feed the install hash, so a sibling-only edit is
// detected as new content.
func (pc *ParseContext) ReadSibling(rel string) ([]byte, error) {
	data, err := pc.Source.ReadSibling(rel)
	if err != nil {
		return nil, err
	}
	pc.AddDep(rel)
	pc.siblings = append(pc.siblings, data)
	return data, nil
}

// HashInput returns the source content concatenated with every sibling read
// during parsing, in read order.
func (pc *ParseContext) HashInput() []byte {
	if len(pc.siblings) == 0 {
		return pc.Content
	}
	buf := append([]byte(nil), pc.Content...)
	for _, sib := range pc.siblings {
		buf = append(buf, sib...)
	}
	return buf
}

// AddDep records a sibling dependency without reading it.
func (pc *ParseContext) AddDep(rel string) {
	pc.deps = append(pc.deps, rel)
}

// Deps returns the recorded sibling dependencies.
func (pc *ParseContext) Deps() []string {
	return pc.deps
}

// ParseFunc decodes raw content into one or more payloads of a single
// variant. Most representations return exactly one; parameter bundles return
// one entity per key.
type ParseFunc func(pc *ParseContext) ([]Decoded, error)

// Representation binds a source signature to a parse function producing one
// entity variant.
type Representation struct {
	Signature Signature
	Variant   Variant
	Parse     ParseFunc
}

// Registry declares which entity variants exist and which source signatures
// can produce each variant. The dispatch rule table is ordered: earlier
// registrations win ties.
type Registry struct {
	variants        map[Variant]bool
	representations []*Representation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		variants: make(map[Variant]bool),
	}
}

// RegisterVariant declares an entity variant. Declaration happens at startup;
// Validate later enforces that every declared variant is reachable.
func (r *Registry) RegisterVariant(v Variant) error {
	if v < 0 || v >= numVariants {
		return errors.WrapInvalid(errors.ErrUnknownVariant, "Registry", "RegisterVariant", "variant range check")
	}
	r.variants[v] = true
	return nil
}

// RegisterRepresentation appends a dispatch rule producing variant v. May be
// called multiple times per variant: several formats can produce the same
// logical kind.
func (r *Registry) RegisterRepresentation(sig Signature, v Variant, parse ParseFunc) error {
	if sig.Ext == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterRepresentation", "extension check")
	}
	if parse == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterRepresentation", "parse function check")
	}
	if !r.variants[v] {
		return errors.WrapInvalid(
			fmt.Errorf("variant %s not declared", v),
			"Registry", "RegisterRepresentation", "variant check")
	}

	r.representations = append(r.representations, &Representation{
		Signature: sig,
		Variant:   v,
		Parse:     parse,
	})
	return nil
}

// Validate enforces registry completeness: every declared variant must be
// reachable from at least one representation. Violations are fatal
// configuration errors detected at startup.
func (r *Registry) Validate() error {
	reachable := make(map[Variant]bool, len(r.variants))
	for _, rep := range r.representations {
		reachable[rep.Variant] = true
	}

	for v := range r.variants {
		if !reachable[v] {
			return errors.WrapFatal(
				fmt.Errorf("variant %s: %w", v, errors.ErrNoRepresentation),
				"Registry", "Validate", "completeness check")
		}
	}
	return nil
}

// Dispatch resolves src to a representation. Resolution walks the ordered
// rule table: extension (and sub-extension) match first; rules carrying a
// content probe additionally inspect content. The first satisfied rule wins.
func (r *Registry) Dispatch(src Source, content []byte) (*Representation, error) {
	extMatched := false
	for _, rep := range r.representations {
		if src.Ext() != rep.Signature.Ext {
			continue
		}
		extMatched = true
		if rep.Signature.Matches(src, content) {
			return rep, nil
		}
	}

	detail := "no rule for extension"
	if extMatched {
		detail = "extension matched but no signature accepted content"
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: %s (%s)", errors.ErrDispatchFailed, src, detail),
		"Registry", "Dispatch", "signature match")
}

// Variants returns the declared variant set.
func (r *Registry) Variants() []Variant {
	out := make([]Variant, 0, len(r.variants))
	for v := range r.variants {
		out = append(out, v)
	}
	return out
}

// KnowsExt reports whether any rule accepts the extension; directory
// traversal uses this to skip unrelated files with a warning.
func (r *Registry) KnowsExt(ext string) bool {
	for _, rep := range r.representations {
		if rep.Signature.Ext == ext {
			return true
		}
	}
	return false
}
