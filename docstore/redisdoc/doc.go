// Package redisdoc implements docstore.Store on Redis.
//
// Key layout under prefix p for collection c:
//
//	p:{c}:doc:<id>             hash of document fields (empty values are not stored)
//	p:{c}:ids                  set of document ids
//	p:{c}:u:<field>:<value>    id owning a unique field value
//	p:{c}:l:<field>:<value>    set of ids carrying a lookup field value
//
// Inserts and conditional updates are Lua scripts, so unique checks, index
// maintenance and the guarded write happen in one server-side step. Scripts
// only touch keys passed in KEYS, and the {c} hash tag keeps a collection in
// one cluster slot.
package redisdoc
