// Package chunk supplies arena-sized blocks of off-heap memory.
//
// Memory is obtained from the OS in chunks (anonymous mappings) that are
// carved into fixed-size arenas. Arena identifiers encode their chunk and slot,
// so a released arena finds its way back without any lookup table.
//
// Fully empty chunks stay mapped until Decommit unmaps them; the rate at which
// that happens is governed by the resource Controller. Empty chunks Decommit
// keeps have their pages released, so they cost address space but no memory.
package chunk
