package sync

import (
	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/iblt"
)

// PrefixEntry is one locally registered prefix. Seq == 0 means
// "registered but not yet published".
type PrefixEntry struct {
	Prefix    enc.Name
	Seq       uint64
	LastBlock []byte // nil if seq == 0 or no block was piggybacked
}

// PrefixRegistry tracks every locally owned prefix's current sequence
// and reverse-maps each inserted IBLT element hash back to its prefix,
// so that a positive diff hash can be resolved to the (prefix, seq) it
// names.
type PrefixRegistry struct {
	entries    map[string]*PrefixEntry // keyed by prefix.TlvStr()
	hash2prefix map[uint32]enc.Name
}

// NewPrefixRegistry returns an empty registry.
func NewPrefixRegistry() *PrefixRegistry {
	return &PrefixRegistry{
		entries:     make(map[string]*PrefixEntry),
		hash2prefix: make(map[uint32]enc.Name),
	}
}

// AddPrefix registers p with seq=0. Idempotent: registering an already
// known prefix is a no-op and never touches the IBLT, since seq==0
// entries are never inserted into it.
func (r *PrefixRegistry) AddPrefix(p enc.Name) {
	key := p.TlvStr()
	if _, ok := r.entries[key]; ok {
		return
	}
	r.entries[key] = &PrefixEntry{Prefix: p.Clone()}
}

// RemovePrefix forgets p, erasing its published element hash from
// table and hash2prefix if it had one.
func (r *PrefixRegistry) RemovePrefix(table *iblt.Table, p enc.Name) {
	e, ok := r.entries[p.TlvStr()]
	if !ok {
		return
	}
	if e.Seq > 0 {
		h := iblt.HashName(nameAtSeq(p, e.Seq))
		table.Erase(h)
		delete(r.hash2prefix, h)
	}
	delete(r.entries, p.TlvStr())
}

// Advance moves p's sequence from its old value to newSeq (newSeq must
// be greater), replacing lastBlock, and updates table/hash2prefix:
// erasing hash(p++old) (skipped when old==0) and inserting
// hash(p++newSeq). Returns ErrUnknownPrefix if p isn't registered.
func (r *PrefixRegistry) Advance(table *iblt.Table, p enc.Name, newSeq uint64, block []byte) error {
	e, ok := r.entries[p.TlvStr()]
	if !ok {
		return ErrUnknownPrefix
	}

	if e.Seq > 0 {
		oldHash := iblt.HashName(nameAtSeq(p, e.Seq))
		table.Erase(oldHash)
		delete(r.hash2prefix, oldHash)
	}

	e.Seq = newSeq
	e.LastBlock = block

	newHash := iblt.HashName(nameAtSeq(p, newSeq))
	table.Insert(newHash)
	r.hash2prefix[newHash] = p.Clone()

	return nil
}

// CurrentSeq returns p's current sequence and whether p is registered.
func (r *PrefixRegistry) CurrentSeq(p enc.Name) (uint64, bool) {
	e, ok := r.entries[p.TlvStr()]
	if !ok {
		return 0, false
	}
	return e.Seq, true
}

// BlockFor returns the piggybacked block for (p, seq), if p is
// registered, seq matches its current sequence, and a block exists.
func (r *PrefixRegistry) BlockFor(p enc.Name, seq uint64) ([]byte, bool) {
	e, ok := r.entries[p.TlvStr()]
	if !ok || e.Seq != seq || e.LastBlock == nil {
		return nil, false
	}
	return e.LastBlock, true
}

// PrefixOfHash resolves an IBLT element hash back to the prefix that
// produced it, if still current.
func (r *PrefixRegistry) PrefixOfHash(h uint32) (enc.Name, bool) {
	p, ok := r.hash2prefix[h]
	return p, ok
}

// Entry returns the full entry for p, if registered.
func (r *PrefixRegistry) Entry(p enc.Name) (PrefixEntry, bool) {
	e, ok := r.entries[p.TlvStr()]
	if !ok {
		return PrefixEntry{}, false
	}
	return *e, true
}

// All returns every registered entry, in no particular order; used by
// the engine's reply-with-everything fallback when a peer's digest
// could not be decoded.
func (r *PrefixRegistry) All() []PrefixEntry {
	ret := make([]PrefixEntry, 0, len(r.entries))
	for _, e := range r.entries {
		ret = append(ret, *e)
	}
	return ret
}

// nameAtSeq builds the derived key (prefix ++ seq) used both as an
// IBLT element identity and as the on-wire State entry name. Appending
// a sequence-number component is deterministic and injective.
func nameAtSeq(prefix enc.Name, seq uint64) enc.Name {
	return prefix.Append(enc.NewSequenceNumComponent(seq))
}
