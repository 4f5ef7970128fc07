// Package core turns CSV exports into judging records.
//
// It has no transport dependencies and is used by the web server and by
// tests alike.
//
// # Pipeline
//
// Every import follows the same path:
//
//  1. [NewRowReader] strips a UTF-8 BOM, repairs invalid bytes and yields
//     rows lazily. Unparseable text fails with [ErrMalformedInput].
//  2. An importer maps rows onto records. [ImportRoster] refuses the whole
//     file if any row is bad; [ImportDevpost] skips bad rows and reports them.
//  3. Devpost projects receive consecutive table numbers from a single
//     [SlotLease], saved once per batch.
//  4. The [Service] stores the accepted records and logs the outcome.
//
// # Table numbers
//
// A [SlotAllocator] serializes batches: while one import holds a lease no
// other import can read the counter. Numbers drawn from a lease that is
// released without Save are never persisted.
//
// # Error Handling
//
// Technical errors are mapped to organizer-facing messages with [MapError].
// Codes:
//
//   - CSV001-CSV002: Input errors (bad quoting, wrong column count)
//   - SLOT001: Table-number counter unavailable
//   - UPL001-UPL003: Import cancelled, busy or timed out
//   - REQ001: Invalid single-record request
//   - FILE001: Body over the size limit
//   - DB001-DB007: Database errors
package core
