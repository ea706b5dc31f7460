package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
)

// Export is a top-level function a session can be started from.
type Export struct {
	File string   `json:"file"`
	Name string   `json:"name"`
	Args []string `json:"args"`
	Line int      `json:"line"`
}

// DiscoverExports lists the top-level function declarations and arrow
// function variables of a file.
func DiscoverExports(filename, src string) ([]Export, error) {
	low, err := lower(filename, src)
	if err != nil {
		return nil, err
	}
	prog, err := parse(filename, low)
	if err != nil {
		return nil, err
	}
	base := prog.File.Base()

	var out []Export
	add := func(name string, idx int, params *ast.ParameterList) {
		if name == "" || strings.HasPrefix(name, "__") {
			return
		}
		line := low.lines[lineOf(low.code, idx-base)-1]
		if line == 0 {
			return
		}
		out = append(out, Export{
			File: filename,
			Name: name,
			Args: paramNames(low.code, base, params),
			Line: line,
		})
	}

	for _, stmt := range prog.Body {
		switch x := stmt.(type) {
		case *ast.FunctionDeclaration:
			if x.Function != nil && x.Function.Name != nil {
				add(x.Function.Name.Name.String(), int(x.Idx0()), x.Function.ParameterList)
			}
		case *ast.VariableStatement:
			for _, b := range x.List {
				addBinding(b, add)
			}
		case *ast.LexicalDeclaration:
			for _, b := range x.List {
				addBinding(b, add)
			}
		}
	}
	return out, nil
}

func addBinding(b *ast.Binding, add func(string, int, *ast.ParameterList)) {
	if b == nil {
		return
	}
	id, ok := b.Target.(*ast.Identifier)
	if !ok {
		return
	}
	switch fn := b.Initializer.(type) {
	case *ast.ArrowFunctionLiteral:
		add(id.Name.String(), int(id.Idx0()), fn.ParameterList)
	case *ast.FunctionLiteral:
		add(id.Name.String(), int(id.Idx0()), fn.ParameterList)
	}
}

func paramNames(code string, base int, params *ast.ParameterList) []string {
	args := []string{}
	if params == nil {
		return args
	}
	for _, p := range params.List {
		if id, ok := p.Target.(*ast.Identifier); ok {
			args = append(args, id.Name.String())
			continue
		}
		args = append(args, nodeText(code, base, p.Target))
	}
	if params.Rest != nil {
		args = append(args, "..."+nodeText(code, base, params.Rest))
	}
	return args
}

func nodeText(code string, base int, n ast.Node) string {
	start, end := int(n.Idx0())-base, int(n.Idx1())-base
	if start < 0 || end > len(code) || start > end {
		return ""
	}
	return strings.Join(strings.Fields(code[start:end]), " ")
}
