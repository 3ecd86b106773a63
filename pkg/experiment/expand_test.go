package experiment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand_EmptyDocumentYieldsOneEmptyTuple(t *testing.T) {
	doc, err := Parse(strings.NewReader(""))
	require.NoError(t, err)

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Empty(t, tuples[0].Bindings)
}

func TestExpand_SimpleSweep(t *testing.T) {
	const cfg = `
lr:
  - 0.1
  - 0.01
batch_size:
  - 16
  - 32
optimizer: adam
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	require.Len(t, doc.Mappings, 1)

	require.Equal(t, 4, Cardinality(doc.Mappings[0]))

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 4)

	for _, tup := range tuples {
		require.Len(t, tup.Bindings, 3)
		// scalar entry is appended last, regardless of its position in
		// the source mapping.
		assert.Equal(t, "optimizer", tup.Bindings[2].Key)
		assert.Equal(t, "adam", tup.Bindings[2].Value.Literal())
	}

	seen := map[string]bool{}
	for _, tup := range tuples {
		seen[argvString(tup)] = true
	}
	assert.Len(t, seen, 4, "all four combinations should be distinct")
	assert.True(t, seen["--lr 0.1 --batch_size 16 --optimizer adam"])
	assert.True(t, seen["--lr 0.1 --batch_size 32 --optimizer adam"])
	assert.True(t, seen["--lr 0.01 --batch_size 16 --optimizer adam"])
	assert.True(t, seen["--lr 0.01 --batch_size 32 --optimizer adam"])
}

func TestExpand_ListOfMappingsUnionsEachMappingsProduct(t *testing.T) {
	const cfg = `
- lr: [0.1, 0.2]
- lr: [0.3]
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	require.Len(t, doc.Mappings, 2)

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
}

func TestExpand_CompoundKeyContributesAtomicTuple(t *testing.T) {
	const cfg = `
"[model,layers]":
  - ["resnet", 50]
  - ["resnet", 101]
epochs: 10
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)
	require.Len(t, doc.Mappings, 1)
	require.Equal(t, 2, Cardinality(doc.Mappings[0]))

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	for _, tup := range tuples {
		require.Len(t, tup.Bindings, 3)
		assert.Equal(t, "model", tup.Bindings[0].Key)
		assert.Equal(t, "layers", tup.Bindings[1].Key)
		assert.Equal(t, "epochs", tup.Bindings[2].Key)
	}
	assert.Equal(t, int64(50), tuples[0].Bindings[1].Value.Int)
	assert.Equal(t, int64(101), tuples[1].Bindings[1].Value.Int)
}

func TestExpand_CompoundKeyWrongArityIsConfigInvalid(t *testing.T) {
	const cfg = `
"[model,layers]":
  - ["resnet", 50, "extra"]
`
	_, err := Parse(strings.NewReader(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arity 3, want 2")
}

func TestExpand_BooleanFalseIsOmittedFromArgv(t *testing.T) {
	const cfg = `
use_cache:
  - true
  - false
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 2)

	var sawFlag, sawOmitted bool
	for _, tup := range tuples {
		argv := tup.Argv()
		if len(argv) == 1 && argv[0] == "--use_cache" {
			sawFlag = true
		}
		if len(argv) == 0 {
			sawOmitted = true
		}
	}
	assert.True(t, sawFlag, "true should render as a bare flag")
	assert.True(t, sawOmitted, "false should contribute no token")
}

func TestExpand_MixedTypeList(t *testing.T) {
	const cfg = `
value:
  - 1
  - 1.5
  - "text"
  - true
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)

	tuples, err := Expand(doc)
	require.NoError(t, err)
	require.Len(t, tuples, 4)

	kinds := map[ValueKind]bool{}
	for _, tup := range tuples {
		kinds[tup.Bindings[0].Value.Kind] = true
	}
	assert.True(t, kinds[KindInt])
	assert.True(t, kinds[KindFloat])
	assert.True(t, kinds[KindString])
	assert.True(t, kinds[KindBool])
}

func TestExpand_RoundTripArgvForNonBooleanTuples(t *testing.T) {
	const cfg = `
lr:
  - 0.1
  - 0.01
name: trial
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)

	tuples, err := Expand(doc)
	require.NoError(t, err)

	for _, tup := range tuples {
		argv := tup.Argv()
		parsed, err := ParseArgv(argv)
		require.NoError(t, err)
		require.Len(t, parsed.Bindings, len(tup.Bindings))
		for i, b := range tup.Bindings {
			assert.Equal(t, b.Key, parsed.Bindings[i].Key)
			assert.Equal(t, b.Value.Literal(), parsed.Bindings[i].Value.Literal())
		}
	}
}

func TestExpand_DeterministicOrdering(t *testing.T) {
	const cfg = `
a: [1, 2]
b: [3, 4]
`
	doc, err := Parse(strings.NewReader(cfg))
	require.NoError(t, err)

	first, err := Expand(doc)
	require.NoError(t, err)
	second, err := Expand(doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, argvString(first[i]), argvString(second[i]))
	}
}

func argvString(t Tuple) string {
	return strings.Join(t.Argv(), " ")
}
