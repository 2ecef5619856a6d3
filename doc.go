// Package toolgram lets a text-generation model call a fixed set of host-defined Go functions
// ("tools") safely, by constraining what the model may emit instead of trusting it.
//
// # Overview
//
// Each tool's signature is compiled into a production of a context-free grammar. The engine
// enforces that grammar while decoding, so the model can only emit a well-formed call such as
// add(2, 3). The emitted text is parsed back into a call without evaluating anything, and each
// literal argument is coerced to the tool's declared type before the tool runs.
//
// Pipeline: Go function → NewTool (reflection + doc) → Registry → Grammar (cached) → engine →
// Parse → Registry.Invoke (arity, coercion, handler) → Invocation or typed error.
//
// # Key concepts
//
//   - One signature drives both sides: the grammar shown to the engine and the coercion of
//     incoming arguments come from the same Param list.
//   - Closed coercion rules: strings, ints, floats and bools convert only along a fixed table;
//     structured parameters are checked against JSON Schema, coerced field by field, and then
//     validated with Validatable.
//   - Typed failures: ParseError, UnknownToolError, ArityError, TypeCoercionError and
//     ExecutionError let the host tell the model what to fix (see IsClientError).
//   - One generation at a time: Guard serializes engine calls and bounds them with a timeout
//     without ever letting two calls overlap.
//
// Pipeline ties the pieces to an Engine: it builds the prompt, generates under the Guard and
// turns every outcome into a Response. The engine/llamacpp package provides an Engine for a
// llama.cpp server and the server package exposes a Pipeline over HTTP.
//
// # Example
//
//	reg := toolgram.NewRegistry()
//	_, err := reg.RegisterFunc(func(x, y int) int { return x + y },
//	    toolgram.Name("add"), toolgram.Params("x", "y"), toolgram.Doc("Add numbers"))
//	if err != nil { ... }
//	fmt.Println(reg.Grammar())
//	call, err := toolgram.Parse("add(2, 3)")
//	if err != nil { ... }
//	inv, err := reg.Invoke(ctx, call) // inv.Result == 5
package toolgram
