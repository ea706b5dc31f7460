package instrument

import (
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/go-sourcemap/sourcemap"
)

// lowered is a source file converted to CommonJS ES2017, optional chains
// kept, together with a per-line mapping back to the original text.
type lowered struct {
	code string
	// lines[i] is the 1-based original line of generated line i+1, 0 if unknown.
	lines []int
}

func loaderFor(filename string) api.Loader {
	switch strings.ToLower(path.Ext(filename)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

func lower(filename, src string) (*lowered, error) {
	res := api.Transform(src, api.TransformOptions{
		Loader:     loaderFor(filename),
		Format:     api.FormatCommonJS,
		Target:     api.ES2017,
		Sourcefile: filename,
		Sourcemap:  api.SourceMapExternal,
		// The engine runs optional chains natively; lowering them would
		// hide the call behind a conditional.
		Supported: map[string]bool{"optional-chain": true},
	})
	if len(res.Errors) > 0 {
		msg := res.Errors[0]
		ierr := &InstrumentationError{File: filename, Msg: msg.Text}
		if msg.Location != nil {
			ierr.Line = msg.Location.Line
			ierr.Column = msg.Location.Column + 1
		}
		return nil, ierr
	}
	code := string(res.Code)
	return &lowered{
		code:  code,
		lines: lineMap(res.Map, code),
	}, nil
}

// lineMap returns, for each generated line, the original line of the
// mapping at its first non-blank column.
func lineMap(raw []byte, code string) []int {
	src := strings.Split(code, "\n")
	lines := make([]int, len(src))
	if len(raw) == 0 {
		return lines
	}
	sm, err := sourcemap.Parse("", raw)
	if err != nil {
		return lines
	}
	for i, text := range src {
		col := len(text) - len(strings.TrimLeft(text, " \t"))
		if _, _, line, _, ok := sm.Source(i+1, col); ok {
			lines[i] = line
		}
	}
	return lines
}
