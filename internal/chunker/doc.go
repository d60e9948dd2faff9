// Package chunker splits extracted document text into overlapping,
// sentence-aligned windows suitable for embedding.
//
// A Chunker never cuts a sentence: sentences are accumulated greedily until
// the next one would push the window past the configured maximum, and each
// new window starts with the trailing sentences of the previous one that fit
// within the configured overlap. Sentence boundary detection is delegated to
// a SentenceSplitter.
package chunker
