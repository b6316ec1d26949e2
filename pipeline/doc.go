// Package pipeline implements the streaming transform layer of the
// secure store.
//
// # Overview
//
// A pipeline is a chain of byte transforms (compression, encryption)
// composed around a backend stream and evaluated chunk by chunk. The
// package provides two directional adapters:
//
//   - Writer (write-over-write): wraps a downstream writer; each Write
//     pushes bytes through the codec chain, and Close flushes every
//     codec's tail before completing the downstream writer.
//   - Reader (read-over-read): wraps an upstream reader; each Read pulls
//     a chunk through the codec chain, and Close disposes codec state
//     before releasing the upstream handle.
//
// Neither adapter ever needs the full payload in memory; per-call work
// is bounded by ChunkSize (8 KiB). Cancellation is observed before every
// chunk moved in either direction.
//
// # Layering
//
// Encryption is the outermost layer on disk. Encoding therefore runs
// compress → encrypt → backend, and decoding runs backend → decrypt →
// decompress:
//
//	w, _ := pipeline.NewWriter(ctx, backendWriter, compressor, encryptor)
//	r, _ := pipeline.NewReader(ctx, backendReader, encryptor, compressor)
//
// # Codecs
//
// Codecs carry the on-disk algorithm tag that the store records in
// object metadata: gzip and zstd (klauspost/compress), lz4
// (pierrec/lz4), and age-x25519 (filippo.io/age) for streaming
// encryption with supplied keys.
package pipeline
