// Package pipeline runs each sample through a fixed sequence of scan steps.
//
// A sample passes through:
//   - inspect: size, SHA-256, SHA3-256, MIME type and EXIF summary
//   - cache_lookup: reuse a recent verdict from the history database
//   - icap_scan: submit the file with RESPMOD
//   - verdict: interpret the response
//   - persist: store the result for later cache lookups and history
//
// Each stage is implemented as a Step that receives the current report and
// can modify it. BatchProcessor runs many pipelines concurrently with
// errgroup, one ICAP client per sample.
package pipeline
