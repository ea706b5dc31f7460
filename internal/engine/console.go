package engine

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"

	"scriptrunner/internal/serialize"
)

// Printer receives script console output.
type Printer interface {
	Print(level, msg string)
}

// PrinterFunc adapts a function to Printer.
type PrinterFunc func(level, msg string)

func (f PrinterFunc) Print(level, msg string) { f(level, msg) }

// LogPrinter writes console output to l.
func LogPrinter(l *log.Logger) Printer {
	return PrinterFunc(func(level, msg string) {
		lvl, err := log.ParseLevel(level)
		if err != nil {
			lvl = log.InfoLevel
		}
		l.Log(lvl, msg, "source", "console")
	})
}

var consoleLevels = map[string]string{
	"log":   "info",
	"info":  "info",
	"warn":  "warn",
	"error": "error",
	"debug": "debug",
	"trace": "debug",
}

func (e *Engine) installConsole(vm *goja.Runtime) {
	c := vm.NewObject()
	for method, level := range consoleLevels {
		_ = c.Set(method, func(call goja.FunctionCall) goja.Value {
			e.printer.Print(level, formatArgs(call.Arguments))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", c)
}

// formatArgs joins console arguments the way node prints them: strings
// as-is, errors with their message, everything else as JSON.
func formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, formatValue(a))
	}
	return strings.Join(parts, " ")
}

func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if obj.ClassName() == "Error" {
		return v.String()
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "[Function: " + functionName(v, "") + "]"
	}
	return serialize.Text(v.Export())
}
