// Package tlsroots builds the trust store used to dial the backing store.
//
// The pool starts from the system roots and may be extended with a PEM
// bundle (store.ca_file) for private certificate authorities.
package tlsroots
