// Package structured decodes model output into typed deliberation artifacts.
//
// Models are asked for JSON but do not reliably produce it. Every decoder
// therefore reports a Status alongside its value: Success when the reply was
// well formed, Degraded when fields were recovered from malformed output
// (code fences, prose around an object, nested escaped JSON), and Failed
// when nothing usable was found. Degraded values carry documented defaults
// so the pipeline keeps moving; a degraded artifact never aborts a stage.
package structured
