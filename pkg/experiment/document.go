package experiment

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caliban-dev/caliban/pkg/calerr"
)

// EntryKind distinguishes the three entry shapes an experiment-config
// mapping value can take (spec.md §9's tagged variant
// Entry ∈ {Scalar, List[Scalar], CompoundList[List[Scalar]]}).
type EntryKind int

const (
	EntryScalar EntryKind = iota
	EntryList
	EntryCompound
)

// Entry is one key (or compound key) binding from an experiment-config
// mapping, still carrying its raw shape — Expand turns a slice of these
// into argument tuples.
type Entry struct {
	Kind EntryKind
	// Keys holds one key name for Scalar/List entries, or the N ordered
	// key names for a compound-key entry "[k1,...,kN]".
	Keys []string

	Scalar   Scalar     // set when Kind == EntryScalar
	List     []Scalar   // set when Kind == EntryList
	Compound [][]Scalar // set when Kind == EntryCompound; each row has len(Keys) scalars
}

// IsListLike reports whether this entry contributes a product term
// (spanning List and Compound kinds) as opposed to a scalar binding that
// is appended to every tuple unconditionally.
func (e Entry) IsListLike() bool {
	return e.Kind == EntryList || e.Kind == EntryCompound
}

// Len is the number of atomic choices this entry offers the cartesian
// product (1 for a scalar entry).
func (e Entry) Len() int {
	switch e.Kind {
	case EntryList:
		return len(e.List)
	case EntryCompound:
		return len(e.Compound)
	default:
		return 1
	}
}

// Mapping is one top-level experiment-config mapping, its entries kept in
// the order they were declared so expansion and argv emission are
// deterministic and reproducible (spec.md §8).
type Mapping struct {
	Entries []Entry
}

// Document is the parsed form of an experiment-config document: either a
// single mapping or an ordered list of mappings (spec.md §4.3).
type Document struct {
	Mappings []Mapping
}

// ParseFile reads and parses an experiment-config document from a file
// path.
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, calerr.New(calerr.ConfigInvalid, "experiment.ParseFile", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and parses an experiment-config document from an arbitrary
// reader, e.g. standard input (spec.md §4.3's "streamed document").
func Parse(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, calerr.Wrap(calerr.ConfigInvalid, "experiment.Parse", err)
	}

	// An empty document yields exactly one empty tuple (spec.md §4.3,
	// §8 boundary behavior), modeled as a document with one mapping with
	// no entries.
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Document{Mappings: []Mapping{{}}}, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return Document{}, calerr.Wrap(calerr.ConfigInvalid, "experiment.Parse", err)
	}
	if len(node.Content) == 0 {
		return Document{Mappings: []Mapping{{}}}, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		m, err := parseMapping(root, 0)
		if err != nil {
			return Document{}, err
		}
		return Document{Mappings: []Mapping{m}}, nil
	case yaml.SequenceNode:
		mappings := make([]Mapping, 0, len(root.Content))
		for i, item := range root.Content {
			if item.Kind != yaml.MappingNode {
				return Document{}, calerr.New(calerr.ConfigInvalid, "experiment.Parse",
					fmt.Sprintf("element %d of experiment-config list is not a mapping", i), nil)
			}
			m, err := parseMapping(item, i)
			if err != nil {
				return Document{}, err
			}
			mappings = append(mappings, m)
		}
		return Document{Mappings: mappings}, nil
	default:
		return Document{}, calerr.New(calerr.ConfigInvalid, "experiment.Parse",
			"experiment-config document must be a mapping or a list of mappings", nil)
	}
}

func parseMapping(node *yaml.Node, mappingIndex int) (Mapping, error) {
	var m Mapping
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		rawKey := keyNode.Value
		if keys, ok := parseCompoundKey(rawKey); ok {
			entry, err := parseCompoundValue(keys, valNode, mappingIndex, rawKey)
			if err != nil {
				return Mapping{}, err
			}
			m.Entries = append(m.Entries, entry)
			continue
		}

		entry, err := parseSimpleValue(rawKey, valNode, mappingIndex)
		if err != nil {
			return Mapping{}, err
		}
		m.Entries = append(m.Entries, entry)
	}
	return m, nil
}

// parseCompoundKey recognizes the literal "[k1,k2,...,kN]" compound-key
// syntax from spec.md §4.3/§6.
func parseCompoundKey(raw string) ([]string, bool) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, false
	}
	inner := trimmed[1 : len(trimmed)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, false
	}
	parts := strings.Split(inner, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		k := strings.TrimSpace(p)
		if k == "" {
			return nil, false
		}
		keys = append(keys, k)
	}
	if len(keys) < 2 {
		// a single-element "[k]" isn't a compound key by spec.md's
		// definition (values must be N-tuples with N == len(keys), and
		// a compound key always names more than one field in practice).
		return nil, false
	}
	return keys, true
}

func parseSimpleValue(key string, node *yaml.Node, mappingIndex int) (Entry, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		var raw interface{}
		if err := node.Decode(&raw); err != nil {
			return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseSimpleValue", key, err)
		}
		sc, err := ParseScalar(raw)
		if err != nil {
			return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseSimpleValue",
				fmt.Sprintf("key %q in mapping %d: %v", key, mappingIndex, err), nil)
		}
		return Entry{Kind: EntryScalar, Keys: []string{key}, Scalar: sc}, nil
	case yaml.SequenceNode:
		list := make([]Scalar, 0, len(node.Content))
		for idx, item := range node.Content {
			var raw interface{}
			if err := item.Decode(&raw); err != nil {
				return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseSimpleValue",
					fmt.Sprintf("key %q in mapping %d, element %d", key, mappingIndex, idx), err)
			}
			sc, err := ParseScalar(raw)
			if err != nil {
				return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseSimpleValue",
					fmt.Sprintf("key %q in mapping %d, element %d: %v", key, mappingIndex, idx, err), nil)
			}
			list = append(list, sc)
		}
		return Entry{Kind: EntryList, Keys: []string{key}, List: list}, nil
	default:
		return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseSimpleValue",
			fmt.Sprintf("key %q in mapping %d has an unsupported value shape", key, mappingIndex), nil)
	}
}

func parseCompoundValue(keys []string, node *yaml.Node, mappingIndex int, rawKey string) (Entry, error) {
	if node.Kind != yaml.SequenceNode {
		return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseCompoundValue",
			fmt.Sprintf("compound key %q in mapping %d must map to a list of tuples", rawKey, mappingIndex), nil)
	}

	rows := make([][]Scalar, 0, len(node.Content))
	for idx, item := range node.Content {
		if item.Kind != yaml.SequenceNode {
			return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseCompoundValue",
				fmt.Sprintf("compound key %q in mapping %d, element %d is not a tuple", rawKey, mappingIndex, idx), nil)
		}
		if len(item.Content) != len(keys) {
			return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseCompoundValue",
				fmt.Sprintf("compound key %q in mapping %d, element %d has arity %d, want %d",
					rawKey, mappingIndex, idx, len(item.Content), len(keys)), nil)
		}
		row := make([]Scalar, 0, len(keys))
		for j, v := range item.Content {
			var raw interface{}
			if err := v.Decode(&raw); err != nil {
				return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseCompoundValue",
					fmt.Sprintf("compound key %q in mapping %d, element %d, field %d", rawKey, mappingIndex, idx, j), err)
			}
			sc, err := ParseScalar(raw)
			if err != nil {
				return Entry{}, calerr.New(calerr.ConfigInvalid, "experiment.parseCompoundValue",
					fmt.Sprintf("compound key %q in mapping %d, element %d, field %d: %v", rawKey, mappingIndex, idx, j, err), nil)
			}
			row = append(row, sc)
		}
		rows = append(rows, row)
	}
	return Entry{Kind: EntryCompound, Keys: keys, Compound: rows}, nil
}
