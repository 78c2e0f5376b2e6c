// Package objpath reads and writes nested values of an ir.Object by
// dotted path ("address.city").
//
// Set is equality gated: writing a value equal to the current one is a
// no-op and reports false, which is what keeps two-way binding from
// echoing a change back and forth.
package objpath
