// Package crypto provides the password-based encryption used by lanshare transfers.
//
// Design:
//   - Key derivation via PBKDF2-HMAC-SHA256 with a fixed salt, so both peers
//     derive the same key from the same password without exchanging anything
//   - AES-256 in CBC mode with PKCS#7 padding, exposed as streaming transforms
//   - A fresh random 16-byte IV per transfer, sent in the clear
//   - Padding failures surface as ErrDecryptionFailed, separate from I/O errors
package crypto
