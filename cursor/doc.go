// Package cursor converts store continuation markers into opaque, signed
// cursor strings that are safe to hand to external callers, and back.
//
// A cursor carries only the key fields a caller explicitly preserves for the
// query it paginates, and is bound to that query's scope:
//
//	codec, _ := cursor.NewCodec(secret)
//	scope := cursor.Scope("", pk, prefix)
//	token, err := codec.Encode(page.Next, cursor.TableKeys, scope)
//	...
//	start := codec.Decode(r.URL.Query().Get("last_key"), cursor.TableKeys, scope)
//
// Decode never fails: an empty, malformed, tampered or expired cursor, or one
// issued for another query, decodes to nil, which restarts the listing from
// the first page.
package cursor
