// Package features reads per-slide feature archives and turns them into bags.
//
// An archive is a snappy-framed msgpack document holding one or more named
// float32 tables. FileStore probes and decodes archives, Assemble concatenates
// a patient's slides, and ToFixedSize subsamples or pads a bag to a fixed row
// count.
package features
