// Package accounts loads proxies and tokens from line-oriented files and
// pairs them into the accounts the worker pool runs.
//
// Both files hold one entry per line. Blank lines and lines starting with
// '#' are skipped. Proxies without a scheme are read as http proxies.
package accounts
