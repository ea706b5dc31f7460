package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverExportsTypeScript(t *testing.T) {
	src := `export async function main(event: any) {
  return 1;
}

export const handler = async (event: any, ctx: any) => {};

function helper() {}
`
	exports, err := DiscoverExports("main.ts", src)
	require.NoError(t, err)

	require.Len(t, exports, 3)
	assert.Equal(t, Export{File: "main.ts", Name: "main", Args: []string{"event"}, Line: 1}, exports[0])
	assert.Equal(t, Export{File: "main.ts", Name: "handler", Args: []string{"event", "ctx"}, Line: 5}, exports[1])
	assert.Equal(t, Export{File: "main.ts", Name: "helper", Args: []string{}, Line: 7}, exports[2])
}

func TestDiscoverExportsSkipsNested(t *testing.T) {
	src := `function outer(a, ...rest) {
  function inner() {}
  return inner;
}
const value = 3;
`
	exports, err := DiscoverExports("x.js", src)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "outer", exports[0].Name)
	assert.Equal(t, []string{"a", "...rest"}, exports[0].Args)
}

func TestDiscoverExportsSyntaxError(t *testing.T) {
	_, err := DiscoverExports("x.js", "function (")
	assert.ErrorIs(t, err, ErrInstrumentation)
}
