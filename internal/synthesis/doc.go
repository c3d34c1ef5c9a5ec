// Package synthesis turns a completed remote execution into an editor draft
// project: it parses the run's output payload, optionally transcribes the
// voiceover and extracts keywords, and writes the assembled draft to disk.
package synthesis
