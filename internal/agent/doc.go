// Package agent turns a chat message into a RuntimeResponse: the template to
// render, its data and a short text. Two runtimes implement the contract. The
// deterministic Agent classifies the message, queries the banking gateway and
// the geocoder and formats the result. LLMRuntime lets a chat model call the
// banking tools and choose the template itself.
package agent
