/*
Package snindex contains a read-optimised sorted table which stores opaque,
strictly increasing byte keys together with opaque byte values. Tables are
written once by a Writer and then opened read-only, typically memory-mapped,
by any number of concurrent readers. Every index part of the search index
(document lengths, indicators, priors, term postings) is stored as one table.

Data Structure Documentation

Table

A table contains a series of data blocks followed by an index and
a table footer.

    Table layout:
    +---------+---------+---------+-------------+--------------+
    | block 1 |   ...   | block n | block index | table footer |
    +---------+---------+---------+-------------+--------------+

    Block index:
    +----------------------------------+--------------------+------------------+-----------------------------+-------+
    | last key len block 1 (varint)    | last key block 1   | offset 1 (varint)| last key len block 2 (varint)|  ...  |
    +----------------------------------+--------------------+------------------+-----------------------------+-------+

Offsets in the block index are delta encoded. The last key of each block
allows a binary search for the block which may contain a key.

    Table footer:
    +------------------------+------------------+
    | index offset (8 bytes) |  magic (8 bytes) |
    +------------------------+------------------+

Block

A block comprises of a series of sections, followed by a section
index and a single-byte compression type indicator.

    Block layout:
    +-----------+---------+-----------+---------------+---------------------------+
    | section 1 |   ...   | section n | section index | compression type (1-byte) |
    +-----------+---------+-----------+---------------+---------------------------+

    Section index:
    +----------------------------+-------+----------------------------+-------------------------------+
    | section offset 2 (4 bytes) |  ...  | section offset n (4 bytes) |  number of sections (4 bytes) |
    +----------------------------+-------+----------------------------+-------------------------------+

Supported compression types are none (0), snappy (1), zstd (2) and lz4 (3).
LZ4 payloads are prefixed with the uncompressed length (varint).

Section

A section is a series of key/value pairs. Keys are stored in full, which allows
readers to return keys and values as views into the (mapped) block without copying.

    +--------------------+------------------+----------------------+------------------+-------+
    | key len 1 (varint) | key 1 (varlen)   | value len 1 (varint) | value 1 (varlen) |  ...  |
    +--------------------+------------------+----------------------+------------------+-------+
*/
package snindex
