// Package draft assembles a video-editor draft project: a JSON document of
// materials, tracks, and timed segments written into the editor's draft
// folder. The document grows by patching an embedded template, so unknown
// editor fields survive untouched.
package draft
