// Package entity implements the event-driven load/stream/watch facade of the
// demo runtime. Heterogeneous on-disk or embedded sources are dispatched to
// representations, decoded off the render and audio paths, installed under
// canonical path-independent names and re-installed when a watched source
// changes. Other systems consume entities exclusively through bus messages
// and snapshot reads by canonical name.
package entity

// Variant is the closed set of entity kinds. The set is declared once at
// startup; dispatch over it is exhaustive.
type Variant int

const (
	// VariantMesh is vertex/index geometry.
	VariantMesh Variant = iota
	// VariantShader is a shader bundle (per-stage sources).
	VariantShader
	// VariantTexture is image data for sampling.
	VariantTexture
	// VariantParameter is a named runtime tuning value.
	VariantParameter

	numVariants
)

// String returns the variant tag name.
func (v Variant) String() string {
	switch v {
	case VariantMesh:
		return "mesh"
	case VariantShader:
		return "shader"
	case VariantTexture:
		return "texture"
	case VariantParameter:
		return "parameter"
	default:
		return "unknown"
	}
}

// Decoded is a decoded payload produced by a representation's parse function.
// Implementations are immutable once returned: installed entities are shared
// by snapshot with every consumer.
type Decoded interface {
	// DecodedVariant returns the variant tag of this payload.
	DecodedVariant() Variant
}

// SelfNaming is implemented by decoded payloads that carry their canonical
// name in their own content (shader bundle name field, parameter keys, OBJ
// object names). The naming resolver prefers this over the source locator.
type SelfNaming interface {
	EntityName() string
}

// Entity is a loaded, named, typed, in-memory asset instance.
type Entity struct {
	// Name is the canonical, path-independent identity.
	Name string

	// Variant is the entity kind tag.
	Variant Variant

	// Payload is the decoded content.
	Payload Decoded

	// Source is the origin descriptor that produced this entity.
	Source Source

	// Generation increases by one on every reload or replacement of Name and
	// never decreases for the lifetime of the process. A generation bump
	// invalidates any derived state cached under Name.
	Generation uint64

	// contentHash fingerprints the raw source content this entity was decoded
	// from; used to detect unchanged reloads.
	contentHash string
}
