// Package logging provides opt-in file-based logging with rotation for the
// search core, writing under ~/.shopsearch/logs/ when Setup is called.
//
// The searchsvc commands do not call Setup: their --debug flag only
// lowers the level of the JSON logger they write to stderr.
package logging
