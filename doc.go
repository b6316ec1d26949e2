// Package leo provides a secure object store facade layered over a
// pluggable blob backend.
//
// # Architecture
//
// Given a backend that supports conditional (ETag-based) writes,
// snapshots, soft and permanent deletion, and per-object metadata, the
// module layers on:
//
//	┌─────────────────────────────────────┐
//	│          securestore                │  write/read/delete protocol,
//	│  (codec layering, id allocation,    │  optimistic writes, locks,
//	│   queue fan-out, typed objects)     │  bulk re-index and backup
//	└─────────────────────────────────────┘
//	           ↓ transforms via
//	┌─────────────────────────────────────┐
//	│           pipeline                  │  chunked compress/encrypt
//	│  (gzip, zstd, lz4, age-x25519)      │  layering, 8 KiB per step
//	└─────────────────────────────────────┘
//	           ↓ persists via
//	┌─────────────────────────────────────┐
//	│           storage                   │  backend contract: ETags,
//	│   (memstore, natsstore bindings)    │  snapshots, leases, listings
//	└─────────────────────────────────────┘
//
// Post-write notifications fan out through the queue package to backup
// and index consumers; the engine package caches per-partition store
// instances for multi-tenant deployments.
//
// # Layers are independent
//
// The storage contract knows nothing about codecs or queues; backends
// store opaque bytes plus metadata. The pipeline knows nothing about
// storage; it layers transforms over any reader or writer. Only the
// securestore package ties the two together, keying its invariants off
// the reserved metadata keys.
package leo
