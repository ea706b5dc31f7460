package instrument

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteClasses(res *Result) map[string]Class {
	out := make(map[string]Class, len(res.Sites))
	for _, s := range res.Sites {
		out[s.Callee] = s.Class
	}
	return out
}

func TestInstrumentCommonJS(t *testing.T) {
	src := `const ak = require("autokitteh");
const axios = require("axios");
const { helper } = require("./lib");

async function local() {
  return 1;
}

async function main(event) {
  const r = await axios.get("https://example.com");
  await helper(r);
  await local();
  await ak.nextEvent(["s1"]);
  await JSON.parse("{}");
  return r;
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)

	assert.Contains(t, res.Code, `__ak.call(__ak.named(axios.get.bind(axios), "get"), "https://example.com")`)
	assert.Contains(t, res.Code, `__ak.syscalls.nextEvent(["s1"])`)
	assert.Contains(t, res.Code, `await helper(r)`)
	assert.Contains(t, res.Code, `await local()`)
	assert.Contains(t, res.Code, `await JSON.parse("{}")`)
	assert.NotContains(t, res.Code, `require("autokitteh")`)

	classes := siteClasses(res)
	assert.Equal(t, Durable, classes["axios.get"])
	assert.Equal(t, Internal, classes["helper"])
	assert.Equal(t, Internal, classes["local"])
	assert.Equal(t, PlatformSyscall, classes["ak.nextEvent"])
	assert.Equal(t, Internal, classes["JSON.parse"])
}

func TestInstrumentAliasedChain(t *testing.T) {
	src := `const { Client } = require("sdk");
const client = new Client();
const x = client.a.b;

async function main() {
  await x.c.d(1, 2);
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Contains(t, res.Code, `__ak.call(__ak.named(x.c.d.bind(x.c), "d"), 1, 2)`)
	assert.Equal(t, Durable, siteClasses(res)["x.c.d"])
}

func TestInstrumentConstructedOrigins(t *testing.T) {
	src := `const { Store } = require("./store");
const { S3 } = require("aws-sdk");
const store = new Store();
const s3 = new S3();

async function main() {
  await store.put(1);
  await s3.putObject(2);
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)

	classes := siteClasses(res)
	assert.Equal(t, Internal, classes["store.put"])
	assert.Equal(t, Durable, classes["s3.putObject"])
	assert.Contains(t, res.Code, `await store.put(1)`)
	assert.Contains(t, res.Code, `__ak.call(__ak.named(s3.putObject.bind(s3), "putObject"), 2)`)
}

func TestInstrumentReceiverEvaluatedOnce(t *testing.T) {
	src := `const axios = require("axios");

async function main() {
  return await (await axios.create()).get("u");
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Contains(t, res.Code,
		`__ak.call(__ak.named(((__ak_o) => __ak_o.get.bind(__ak_o))(await __ak.call(__ak.named(axios.create.bind(axios), "create"))), "get"), "u")`)
}

func TestInstrumentUnknownGlobalIsDurable(t *testing.T) {
	src := `async function main() {
  await fetch("https://example.com");
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Contains(t, res.Code, `__ak.call(__ak.named(fetch, "fetch"), "https://example.com")`)
}

func TestInstrumentLocalShadowsGlobal(t *testing.T) {
	src := `async function main(fetch) {
  await fetch("x");
  await this.client.send();
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.NotContains(t, res.Code, "__ak.call")
	for _, s := range res.Sites {
		assert.Equal(t, Internal, s.Class, s.Callee)
	}
}

func TestInstrumentSafeCallees(t *testing.T) {
	src := `const axios = require("axios");

async function main() {
  await axios.isCancel(1);
}
`
	res, err := Instrument("main.js", src, WithSafeCallees("axios.isCancel"))
	require.NoError(t, err)
	assert.NotContains(t, res.Code, "__ak.call")
}

func TestInstrumentESModuleImports(t *testing.T) {
	src := `import { get } from "axios";
import helper from "./helper";
import { subscribe } from "autokitteh";

export async function main() {
  await get("u");
  await helper();
  await subscribe("conn", "true");
}
`
	res, err := Instrument("main.ts", src)
	require.NoError(t, err)

	var durable, internal, sys int
	for _, s := range res.Sites {
		switch s.Class {
		case Durable:
			durable++
		case Internal:
			internal++
		case PlatformSyscall:
			sys++
		}
	}
	assert.Equal(t, 1, durable)
	assert.Equal(t, 1, internal)
	assert.Equal(t, 1, sys)
	assert.Contains(t, res.Code, `__ak.syscalls.subscribe("conn", "true")`)
	assert.Contains(t, res.Code, `__ak.call(__ak.named((0, import_axios.get), "get"), "u")`)
}

func TestInstrumentSiteLines(t *testing.T) {
	src := `const axios = require("axios");

async function main() {
  await axios.get("a");

  await axios.get("b");
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	require.Len(t, res.Sites, 2)
	assert.Equal(t, 4, res.Sites[0].Line)
	assert.Equal(t, 6, res.Sites[1].Line)
}

func TestInstrumentCustomNames(t *testing.T) {
	src := `const axios = require("axios");
async function main() { await axios.get("a"); }
`
	res, err := Instrument("main.js", src, WithContextExpr("rt"))
	require.NoError(t, err)
	assert.Contains(t, res.Code, `rt.call(rt.named(axios.get.bind(axios), "get"), "a")`)
}

func TestInstrumentAliasedExternalMethod(t *testing.T) {
	src := `const obj = require("sdk");
const g = obj.method;

async function main() {
  await g();
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Equal(t, Durable, siteClasses(res)["g"])
	assert.Contains(t, res.Code, `__ak.call(__ak.named(g, "g"))`)
}

func TestInstrumentReassignedBinding(t *testing.T) {
	src := `let c = { get: async () => 1 };
c = require("ext");

async function main() {
  await c.get();
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Equal(t, Durable, siteClasses(res)["c.get"])

	local := `let c = require("ext");
c = { get: async () => 1 };
let d = { get: async () => 2 };
d += 1;

async function main() {
  await d.get();
}
`
	res, err = Instrument("main.js", local)
	require.NoError(t, err)
	assert.Equal(t, Internal, siteClasses(res)["d.get"])
}

func TestInstrumentOptionalChainCalls(t *testing.T) {
	src := `const fake = require("fake");

async function main() {
  await fake?.get("u");
  await fake.list?.(1);
  await fake?.a.b(2);
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)

	classes := siteClasses(res)
	assert.Equal(t, Durable, classes["fake?.get"])
	assert.Equal(t, Durable, classes["fake.list"])
	assert.Equal(t, Durable, classes["fake?.a.b"])

	assert.Contains(t, res.Code,
		`__ak.optional(((__ak_o) => __ak_o == null ? undefined : __ak_o.get.bind(__ak_o))(fake), "get")?.("u")`)
	assert.Contains(t, res.Code,
		`__ak.optional(((__ak_o) => __ak_o.list?.bind(__ak_o))(fake), "list")?.(1)`)
	assert.Contains(t, res.Code,
		`__ak.optional(((__ak_o) => __ak_o == null ? undefined : __ak_o.b.bind(__ak_o))(fake?.a), "b")?.(2)`)
}

func TestInstrumentOptionalPlatformSyscall(t *testing.T) {
	src := `const ak = require("autokitteh");

async function main() {
  await ak.subscribe?.("conn", "true");
}
`
	res, err := Instrument("main.js", src)
	require.NoError(t, err)
	assert.Equal(t, PlatformSyscall, res.Sites[0].Class)
	assert.Contains(t, res.Code, `__ak.syscalls.subscribe("conn", "true")`)
}

func TestInstrumentSyntaxError(t *testing.T) {
	_, err := Instrument("bad.js", "async function main( {\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstrumentation))

	var ierr *InstrumentationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "bad.js", ierr.File)
	assert.Positive(t, ierr.Line)
}

func TestKeepLines(t *testing.T) {
	assert.Equal(t, "f(a\n\n)", keepLines("g(\na,\nb)", "f(a)"))
	assert.Equal(t, "f(a)", keepLines("g(a)", "f(a)"))
}

func TestUnmatchedClose(t *testing.T) {
	assert.Equal(t, 0, unmatchedClose(`a.b(c)`))
	assert.Equal(t, 1, unmatchedClose(`0, x.y)(z)`))
	assert.Equal(t, 0, unmatchedClose(`f(")", ')', `+"`)`"+`, /* ) */ 1)`))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "platform-syscall", PlatformSyscall.String())
	assert.Equal(t, "durable", Durable.String())
}
