// Package asr resolves spoken audio into timestamped utterances used to lay
// subtitle segments on the draft timeline.
package asr
