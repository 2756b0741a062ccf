// Package sample reads the files submitted for scanning and describes them.
//
// The SHA-256 digest computed here keys the scan history, so a file that was
// already scanned by the same server can be answered from the database.
package sample
