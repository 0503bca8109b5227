// Package codegate is a security- and policy-enforcing gateway that sits
// between developer coding assistants and upstream LLM providers.
//
// CodeGate receives provider-native HTTP requests (OpenAI chat and legacy
// completions, Anthropic messages, Ollama chat and generate), runs them
// through an input pipeline that redacts secrets and PII, enforces
// workspace custom instructions and can short-circuit with a local answer,
// forwards the result to the selected upstream, then streams the reply
// back through an output pipeline that restores redacted values and
// annotates flagged packages.
//
// # Quick Start
//
// Install CodeGate:
//
//	go install github.com/kadirpekel/codegate/cmd/codegate@latest
//
// Start the gateway:
//
//	codegate serve --config codegate.yaml
//
// Point a coding assistant at a provider route:
//
//	/openai/v1/chat/completions
//	/anthropic/v1/messages
//	/ollama/api/chat
//
// or at the muxing route, which picks the destination from the active
// workspace's rules:
//
//	/v1/mux/chat/completions
//
// # Key Packages
//
//   - pkg/protocol: typed wire protocols plus SSE/NDJSON codecs
//   - pkg/translate: bidirectional protocol mappers
//   - pkg/pipeline: input and streaming-output pipelines and their steps
//   - pkg/mux: workspace rule registry, matchers and the router
//   - pkg/providers: upstream adapters
//   - pkg/storage: SQL persistence (sqlite, mysql, postgres)
//
// # License
//
// Apache-2.0 - See LICENSE for details.
package codegate
