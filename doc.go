/*
Package hstore implements a hierarchical key-value store for structured
scientific-style data (in this case, on top of Bolt).

We implement:

1. Groups, nested namespaces navigable by name, each holding typed terminal
values (“nodes”) and further sub-groups.

2. Typed leaf values: integers and floats of several widths, booleans,
strings, binary blobs, homogeneous n-dimensional arrays and ragged arrays.

3. A serialization protocol (Storable) that writes objects into groups with a
small type/version header and reads them back with schema-version dispatch,
including a registry of loaders for polymorphic reconstruction and lazy stubs
that defer materialization until first access.

4. A read-only lock guard with scoped unlock and recursive propagation over
hierarchical children.

# Technical Details

**Groups.**
We rely on nested buckets in Bolt: one bucket per group. Terminal values live
as keys inside their group's bucket; Bolt distinguishes sub-buckets from plain
keys natively, which gives us the node/group split for free. The in-memory
backend mirrors the same semantics for tests.

**Value encoding**: flags (uvarint), kind (uvarint), payload, xxhash64
checksum.

Flags carry the encoding version and a compression bit. Payload is msgpack of
the kind-specific representation, gzip-compressed when larger than the
configured threshold. The trailing checksum covers everything before it; a
mismatch on read is reported as corruption, not as a decode error.

**Object headers.**
Serialized objects write NAME, TYPE, OBJECT, VERSION and STORE_VERSION keys
into their group. TYPE is a stable tag consulted against the loader registry
on read; STORE_VERSION selects the reader's schema-evolution branch and
defaults to the oldest supported version when absent.
*/
package hstore
