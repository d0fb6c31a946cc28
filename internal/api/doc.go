// Package api serves the HTTP surface of the assistant: the chat endpoint,
// the A2A message, stream and JSON-RPC endpoints, the agent card, the
// banking MCP server and Prometheus metrics.
package api
