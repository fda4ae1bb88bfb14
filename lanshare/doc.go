// Package lanshare shares single files between two hosts without a server.
//
// Peers on the same LAN find each other with a UDP broadcast discovery round;
// peers elsewhere are addressed manually. A file then moves over one direct
// connection, optionally encrypted with a shared password.
//
// A Node owns the long-lived pieces (the discovery responder and the
// transfer configuration). Each user operation runs on a Session, which holds
// the discovered peers, the chosen peer, the password and the save directory.
package lanshare
