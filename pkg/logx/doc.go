// Package logx configures dasladen's logging.
//
// Two layers live here:
//   - Logger/Service: process logging on top of zerolog (short console
//     timestamps and callers, JSON file output, runtime level swaps).
//   - Hub/RunLog: the per-run line log. A Hub fans every RunLog line out to
//     the enabled sinks (console, log/<key>.log files, the process logger).
package logx
