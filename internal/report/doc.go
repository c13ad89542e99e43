// Package report turns raw scan-report JSON into a structured Document and
// renders that Document as Markdown.
//
// Reports come from a third-party scanner plus an AI augmentation step and
// have no fixed schema. Format walks the document structurally and layers two
// narrow special cases on top: configuration keys (prefixed with "@") are
// hoisted into a key/value table at every level, and site entries carrying an
// "alerts" array are rendered as an alert table with per-instance details.
// Anything else falls back to the generic walk, so Format never fails.
package report
