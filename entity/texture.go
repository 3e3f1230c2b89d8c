package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hadronized/demo-05/errors"
)

// Texture is a decoded texture descriptor. The descriptor names the image
// file and its sampling behaviour; the image bytes themselves are read as a
// sibling so the texture reloads when the image changes.
type Texture struct {
	Name     string
	Image    []byte
	Sampling TextureSampling
}

// TextureSampling describes filtering and wrapping.
type TextureSampling struct {
	Filter string `json:"filter"`
	Wrap   string `json:"wrap"`
}

// DecodedVariant implements Decoded.
func (t *Texture) DecodedVariant() Variant { return VariantTexture }

// EntityName implements SelfNaming. An empty name defers to source-stem
// naming.
func (t *Texture) EntityName() string { return t.Name }

// textureDescriptor is the JSON wire form. Type discriminates generic .json
// sources; ProbeJSONType matches on it.
type textureDescriptor struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Image    string          `json:"image"`
	Sampling TextureSampling `json:"sampling"`
}

// ParseTexture decodes a texture descriptor and reads the referenced image
// through the parse context.
func ParseTexture(pc *ParseContext) ([]Decoded, error) {
	wrap := func(err error, action string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParseFailed, err), "Texture", "Parse", action)
	}

	var desc textureDescriptor
	if err := json.Unmarshal(pc.Content, &desc); err != nil {
		return nil, wrap(err, "descriptor decode")
	}
	if strings.TrimSpace(desc.Image) == "" {
		return nil, wrap(fmt.Errorf("descriptor missing image path"), "image check")
	}

	img, err := pc.ReadSibling(desc.Image)
	if err != nil {
		return nil, errors.Wrap(
			fmt.Errorf("image %q: %w", desc.Image, err),
			"Texture", "Parse", "image read")
	}

	if desc.Sampling.Filter == "" {
		desc.Sampling.Filter = "linear"
	}
	if desc.Sampling.Wrap == "" {
		desc.Sampling.Wrap = "repeat"
	}

	return []Decoded{&Texture{Name: desc.Name, Image: img, Sampling: desc.Sampling}}, nil
}
