// Package tailer streams lines appended to the client log through a
// supervised helper process.
//
// The helper (Follow, run as "gamewatch tail --file PATH") writes one
// record per readable increment to stdout: a JSON array of the complete
// lines read, followed by a newline. The parent side (ExecSpawner,
// Decoder) turns stdout chunks back into ordered lines, dropping malformed
// records individually.
package tailer
