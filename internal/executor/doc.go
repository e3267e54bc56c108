// Package executor interprets suspend Programs against a register file.
//
// The executor is a linear loop over one leg of an ir.Program. It never
// allocates, never logs and never calls back into the orchestration layer:
// while it runs, main memory may be in self-refresh and only cache-resident
// code and data are safe to touch. Keeping the Program and this package
// resident is the platform's obligation; nothing here can check it.
//
// Faithful semantics are the default. A WaitUntil that is never satisfied
// spins forever and Delay always burns n*k iterations. WithPollLimit offers
// a bounded variant that reports *PollLimitError instead of hanging.
package executor
