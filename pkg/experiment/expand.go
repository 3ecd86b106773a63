package experiment

// Binding is one resolved key/value pair inside an expanded tuple.
type Binding struct {
	Key   string
	Value Scalar
}

// Tuple is one fully-resolved combination of bindings: one point in the
// cartesian product of an experiment-config mapping's list-valued entries,
// plus that mapping's scalar entries appended unconditionally.
type Tuple struct {
	Bindings []Binding
}

// Expand walks every mapping in doc and returns the concatenation of each
// mapping's own cartesian-product expansion (spec.md §4.3). A document with
// no mappings or a single mapping with no entries expands to exactly one
// empty tuple, never zero tuples.
func Expand(doc Document) ([]Tuple, error) {
	if len(doc.Mappings) == 0 {
		return []Tuple{{}}, nil
	}
	var out []Tuple
	for _, m := range doc.Mappings {
		tuples, err := expandMapping(m)
		if err != nil {
			return nil, err
		}
		out = append(out, tuples...)
	}
	return out, nil
}

// expandMapping computes the cartesian product of m's list-like entries
// (List and Compound), in the order they were declared, then appends every
// scalar entry's single binding to each resulting tuple, also in
// declaration order. Appending scalars last (rather than interleaving them
// at their original position) is a deliberate reading of spec.md §4.3:
// list-valued entries drive the product, scalars ride along on every row.
func expandMapping(m Mapping) ([]Tuple, error) {
	var listEntries, scalarEntries []Entry
	for _, e := range m.Entries {
		if e.IsListLike() {
			listEntries = append(listEntries, e)
		} else {
			scalarEntries = append(scalarEntries, e)
		}
	}

	combos := []Tuple{{}}
	for _, e := range listEntries {
		next := make([]Tuple, 0, len(combos)*e.Len())
		for _, c := range combos {
			for idx := 0; idx < e.Len(); idx++ {
				bindings := make([]Binding, len(c.Bindings), len(c.Bindings)+len(e.Keys))
				copy(bindings, c.Bindings)
				switch e.Kind {
				case EntryList:
					bindings = append(bindings, Binding{Key: e.Keys[0], Value: e.List[idx]})
				case EntryCompound:
					row := e.Compound[idx]
					for i, k := range e.Keys {
						bindings = append(bindings, Binding{Key: k, Value: row[i]})
					}
				}
				next = append(next, Tuple{Bindings: bindings})
			}
		}
		combos = next
	}

	for i := range combos {
		for _, e := range scalarEntries {
			combos[i].Bindings = append(combos[i].Bindings, Binding{Key: e.Keys[0], Value: e.Scalar})
		}
	}

	return combos, nil
}

// Cardinality returns the number of tuples expandMapping(m) would produce
// without actually building them, for invariant checks in tests: the
// product of every list-like entry's Len (1 if there are none).
func Cardinality(m Mapping) int {
	n := 1
	for _, e := range m.Entries {
		if e.IsListLike() {
			n *= e.Len()
		}
	}
	return n
}
