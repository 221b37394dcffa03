// Package fetch acquires artifacts: plain HTTP downloads, authenticated
// depot downloads through an external tool, and expansion of staged
// archives.
//
// Every operation blocks until it finishes and reports failures with the
// artifact and the tool involved. Nothing here decides whether a fetch is
// needed; that is the pipeline's job.
package fetch
