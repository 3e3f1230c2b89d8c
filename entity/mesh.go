package entity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hadronized/demo-05/errors"
)

// Mesh is a decoded triangle mesh: interleaved position/normal vertices plus
// a triangle index list. Name carries the OBJ object name when the document
// declares one.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// EntityName returns the object name declared in the document, or "" when
// the document is anonymous and the name falls back to the source stem.
func (m *Mesh) EntityName() string { return m.Name }

// Vertex is one mesh vertex.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
}

// DecodedVariant implements Decoded.
func (m *Mesh) DecodedVariant() Variant { return VariantMesh }

// Triangles returns the triangle count.
func (m *Mesh) Triangles() int { return len(m.Indices) / 3 }

// objIndex is a position/normal index pair as referenced by a face element.
type objIndex struct {
	pos  int
	norm int
}

// ParseMesh decodes a Wavefront OBJ document into a Mesh. Only the subset
// the render path consumes is accepted: a single object made of triangles
// with per-vertex normals. Faces referencing a vertex/normal pair more than
// once share the deduplicated vertex.
func ParseMesh(pc *ParseContext) ([]Decoded, error) {
	wrap := func(err error, action string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParseFailed, err), "Mesh", "Parse", action)
	}

	var (
		positions [][3]float32
		normals   [][3]float32
		indices   []uint32
		vertices  []Vertex
		seen      = make(map[objIndex]uint32)
		objects   int
		name      string
	)

	sc := bufio.NewScanner(bytes.NewReader(pc.Content))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "o":
			objects++
			if objects > 1 {
				return nil, wrap(fmt.Errorf("line %d: more than one object", line), "object count check")
			}
			if len(fields) > 1 {
				name = fields[1]
			}

		case "v":
			p, err := parseVec3(fields[1:])
			if err != nil {
				return nil, wrap(fmt.Errorf("line %d: vertex: %v", line, err), "vertex parse")
			}
			positions = append(positions, p)

		case "vn":
			n, err := parseVec3(fields[1:])
			if err != nil {
				return nil, wrap(fmt.Errorf("line %d: normal: %v", line, err), "normal parse")
			}
			normals = append(normals, n)

		case "f":
			if len(fields) != 4 {
				return nil, wrap(fmt.Errorf("line %d: face has %d vertices, want 3", line, len(fields)-1), "face arity check")
			}
			for _, elem := range fields[1:] {
				idx, err := parseFaceElement(elem, len(positions), len(normals))
				if err != nil {
					return nil, wrap(fmt.Errorf("line %d: %v", line, err), "face parse")
				}
				vi, ok := seen[idx]
				if !ok {
					vi = uint32(len(vertices))
					vertices = append(vertices, Vertex{
						Position: positions[idx.pos],
						Normal:   normals[idx.norm],
					})
					seen[idx] = vi
				}
				indices = append(indices, vi)
			}

		case "vt", "s", "mtllib", "usemtl", "g":
			// Tolerated and ignored.

		default:
			return nil, wrap(fmt.Errorf("line %d: unsupported directive %q", line, fields[0]), "directive check")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, wrap(err, "scan")
	}

	if len(indices) == 0 {
		return nil, wrap(fmt.Errorf("no faces"), "face presence check")
	}

	return []Decoded{&Mesh{Name: name, Vertices: vertices, Indices: indices}}, nil
}

func parseVec3(fields []string) ([3]float32, error) {
	var v [3]float32
	if len(fields) < 3 {
		return v, fmt.Errorf("want 3 components, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, fmt.Errorf("component %d: %v", i, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// parseFaceElement parses one face corner of the form "p", "p/t", "p//n" or
// "p/t/n". OBJ indices are 1-based; negative indices count from the end.
// A normal reference is mandatory.
func parseFaceElement(elem string, npos, nnorm int) (objIndex, error) {
	parts := strings.Split(elem, "/")
	if len(parts) < 1 || len(parts) > 3 {
		return objIndex{}, fmt.Errorf("malformed face element %q", elem)
	}

	pos, err := resolveObjIndex(parts[0], npos)
	if err != nil {
		return objIndex{}, fmt.Errorf("face element %q: position: %v", elem, err)
	}

	if len(parts) < 3 || parts[2] == "" {
		return objIndex{}, fmt.Errorf("face element %q: missing normal", elem)
	}
	norm, err := resolveObjIndex(parts[2], nnorm)
	if err != nil {
		return objIndex{}, fmt.Errorf("face element %q: normal: %v", elem, err)
	}

	return objIndex{pos: pos, norm: norm}, nil
}

func resolveObjIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	default:
		return 0, fmt.Errorf("index %d out of range (have %d)", i, n)
	}
}

// meshDoc is the JSON wire form of a mesh carrying a "type":"mesh" marker.
type meshDoc struct {
	Name     string `json:"name"`
	Vertices []struct {
		Position [3]float32 `json:"position"`
		Normal   [3]float32 `json:"normal"`
	} `json:"vertices"`
	Indices []uint32 `json:"indices"`
}

// ParseMeshJSON decodes a JSON mesh document. Unlike OBJ, vertices arrive
// already interleaved and indexed; only triangle lists are accepted.
func ParseMeshJSON(pc *ParseContext) ([]Decoded, error) {
	wrap := func(err error, action string) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParseFailed, err), "Mesh", "ParseJSON", action)
	}

	var doc meshDoc
	if err := json.Unmarshal(pc.Content, &doc); err != nil {
		return nil, wrap(err, "document decode")
	}
	if len(doc.Vertices) == 0 {
		return nil, wrap(fmt.Errorf("no vertices"), "vertex presence check")
	}
	if len(doc.Indices) == 0 {
		return nil, wrap(fmt.Errorf("no indices"), "index presence check")
	}
	if len(doc.Indices)%3 != 0 {
		return nil, wrap(fmt.Errorf("%d indices do not form triangles", len(doc.Indices)), "triangle check")
	}
	for i, idx := range doc.Indices {
		if int(idx) >= len(doc.Vertices) {
			return nil, wrap(fmt.Errorf("index %d references vertex %d of %d", i, idx, len(doc.Vertices)), "index bounds check")
		}
	}

	mesh := &Mesh{
		Name:     doc.Name,
		Vertices: make([]Vertex, len(doc.Vertices)),
		Indices:  doc.Indices,
	}
	for i, v := range doc.Vertices {
		mesh.Vertices[i] = Vertex{Position: v.Position, Normal: v.Normal}
	}
	return []Decoded{mesh}, nil
}
