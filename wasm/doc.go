// Package wasm provides WebAssembly binary format parsing and encoding.
//
// The parser reads module structure only. Each entry of the code section is
// recorded as a byte range into the original binary and left undecoded, so
// parsing cost does not grow with the amount of code and a malformed
// function body never fails the module as a whole.
//
// # Supported Features
//
//	WebAssembly MVP plus:
//	  - Reference types in tables, elements and globals (funcref, externref)
//	  - Element segment flags 0-7 and data segment flags 0-2
//	  - The data count section
//	  - The "name" custom section (module and function names)
//
// Single table and single memory only. Shared or 64-bit memories, GC
// types and tags are rejected at parse time.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModuleValidate(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i := range module.Code {
//	    def := module.Def(i)
//	    fmt.Printf("%s at %d+%d\n", def.Name, def.Range.Start, def.Range.Size)
//	}
//
// # Encoding
//
// Modules can be built in Go and encoded, with Code assembling bodies:
//
//	m := &wasm.Module{}
//	ti := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}})
//	m.Funcs = []uint32{ti}
//	m.Code = []wasm.FuncBody{wasm.NewCode().LocalGet(0).I32Const(1).Op(wasm.OpI32Add).Body()}
//	m.Exports = []wasm.Export{{Name: "inc", Kind: wasm.KindFunc}}
//	data := m.Encode()
package wasm
