// Package fieldmeta holds the rules that describe dynamic ledger fields: key
// sanitising, label derivation, type guessing from headers and sampled values,
// and the typed Value used at the JSON boundary.
package fieldmeta
