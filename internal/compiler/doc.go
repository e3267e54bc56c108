// Package compiler turns CUE platform definitions into suspend platforms.
//
// A definition lives under platform.<name> and is unified with the embedded
// schema (#Platform) before anything is read from it, so type and range
// errors carry CUE source positions. Builtin definitions for the stx7105
// and stx7111 are embedded in the binary.
//
//	platform: stx7111: {
//		flags: ["allow_standby"]
//		programs: self_refresh: {
//			suspend: [{op: "or", addr: 0xfe001198, value: 0x100000}, ...]
//			resume: [...]
//		}
//		clocks: {...}
//		sim: {...}
//	}
package compiler
